package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sweetpotato0/adaptive-rag/httpapi"
	"github.com/sweetpotato0/adaptive-rag/mcpserver"
	"github.com/sweetpotato0/adaptive-rag/rag/adaptive"
	"github.com/sweetpotato0/adaptive-rag/session"
)

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("question is required")
	}

	a, cleanup, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := a.engine.RunTurn(c.Context, adaptive.TurnRequest{Question: question, ThreadID: c.String("thread")})
	if err != nil {
		return cli.Exit(adaptive.Describe(err), 1)
	}
	printResult(c.App.Writer, res)
	return nil
}

func ingestCommand(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("at least one path is required")
	}

	a, cleanup, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer cleanup()

	if a.cfg.Vector.Backend == "memory" {
		a.logger.Warn("memory vector store is not persisted; use --docs with ask, chat, serve or mcp instead")
	}
	n, err := a.ingest(c.Context, paths)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Indexed %d chunks\n", n)
	return nil
}

func serveCommand(c *cli.Context) error {
	a, cleanup, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := c.String("addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}
	srv := httpapi.New(a.engine, a.sessions, a.feedback)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-c.Context.Done():
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func mcpCommand(c *cli.Context) error {
	a, cleanup, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mcpserver.New("adaptive-rag", version, a.engine, a.sessions, a.feedback)
	addr := c.String("http")
	if addr == "" {
		return srv.RunStdio(c.Context)
	}

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("mcp server listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-c.Context.Done():
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

func chatCommand(c *cli.Context) error {
	a, cleanup, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer cleanup()

	thread := c.String("thread")
	if thread == "" {
		thread = session.NewThreadID()
	}
	r := &repl{
		in:       c.App.Reader,
		out:      c.App.Writer,
		thread:   thread,
		engine:   a.engine,
		sessions: a.sessions,
		feedback: a.feedback,
	}
	return r.run(c.Context)
}

type turnRunner interface {
	RunTurn(ctx context.Context, req adaptive.TurnRequest) (*adaptive.TurnResult, error)
}

type sessionResetter interface {
	Reset(ctx context.Context, threadID string) (string, error)
	History(ctx context.Context, threadID string) ([]session.Exchange, error)
}

type feedbackLogger interface {
	Log(ctx context.Context, question, answer, rating string) string
}

// repl drives the chat command. The last successful exchange is the target
// of /good and /bad.
type repl struct {
	in       io.Reader
	out      io.Writer
	thread   string
	engine   turnRunner
	sessions sessionResetter
	feedback feedbackLogger

	lastQuestion string
	lastAnswer   string
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "Thread %s. Type /quit to exit.\n", r.thread)
	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if done := r.handle(ctx, strings.TrimSpace(scanner.Text())); done {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle processes one input line and reports whether the session should end.
func (r *repl) handle(ctx context.Context, line string) bool {
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	case "/clear":
		next, err := r.sessions.Reset(ctx, r.thread)
		if err != nil {
			fmt.Fprintf(r.out, "Failed to clear history: %v\n", err)
			return false
		}
		r.thread, r.lastQuestion, r.lastAnswer = next, "", ""
		fmt.Fprintf(r.out, "History cleared. New thread %s\n", next)
		return false
	case "/history":
		history, err := r.sessions.History(ctx, r.thread)
		if err != nil {
			fmt.Fprintf(r.out, "Failed to load history: %v\n", err)
			return false
		}
		if len(history) == 0 {
			fmt.Fprintln(r.out, "No questions asked yet.")
		}
		for i, ex := range history {
			fmt.Fprintf(r.out, "%d. %s\n", i+1, ex.Question)
		}
		return false
	case "/good", "/bad":
		if r.lastAnswer == "" {
			fmt.Fprintln(r.out, "Nothing to rate yet.")
			return false
		}
		rating := "positive"
		if line == "/bad" {
			rating = "negative"
		}
		fmt.Fprintln(r.out, r.feedback.Log(ctx, r.lastQuestion, r.lastAnswer, rating))
		return false
	}

	res, err := r.engine.RunTurn(ctx, adaptive.TurnRequest{Question: line, ThreadID: r.thread})
	if err != nil {
		fmt.Fprintln(r.out, adaptive.Describe(err))
		return false
	}
	r.lastQuestion, r.lastAnswer = line, res.Answer
	printResult(r.out, res)
	return false
}

func printResult(w io.Writer, res *adaptive.TurnResult) {
	fmt.Fprintln(w, res.Answer)
	if sources := res.Sources(); len(sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, src := range sources {
			fmt.Fprintf(w, "  - %s\n", src)
		}
	}
	if res.Verdict == adaptive.VerdictUngrounded {
		fmt.Fprintln(w, "\n(note: this answer could not be fully verified against the sources)")
	}
}
