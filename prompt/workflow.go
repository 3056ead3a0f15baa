package prompt

// Template names used by the adaptive workflow.
const (
	Route        = "route"
	Relevance    = "grade_relevance"
	Groundedness = "grade_groundedness"
	Generate     = "generate"
	Rewrite      = "rewrite"
)

const routeTemplate = `You are an expert at routing a user question to a vectorstore or web search.
The vectorstore contains documents that were ingested locally by the operator of this assistant.
Use the vectorstore for questions about those documents. Use web search for questions about current events
or anything that needs fresh or external information.
Return JSON only with a single key "datasource" whose value is "vectorstore" or "web_search".`

const relevanceTemplate = `You are a grader assessing relevance of a retrieved document to a user question.
If the document contains keywords or semantic meaning related to the question, grade it as relevant.
It does not need to be a stringent test. The goal is to filter out erroneous retrievals.
Return JSON only with a single key "binary_score" whose value is "yes" or "no".`

const groundednessTemplate = `You are a grader assessing whether an answer is grounded in / supported by a set of retrieved facts.
Return JSON only with a single key "binary_score" whose value is "yes" when the answer is supported by the facts and "no" otherwise.`

const generateTemplate = `You are an assistant for question-answering tasks.
Use the following pieces of retrieved context to answer the question.
If you don't know the answer, say that you don't know.
Use three sentences maximum and keep the answer concise.
Conversation History: {{.history}}
Question: {{.question}}
Context: {{.context}}
Answer:`

const rewriteTemplate = `You are a question re-writer that converts an input question to a better version that is optimized
for vectorstore retrieval. Look at the input and reason about the underlying semantic intent.
Return only the improved question, without quotes or commentary.`

// Defaults returns a manager holding the built-in workflow prompts.
func Defaults() *Manager {
	m := NewManager()
	for name, content := range map[string]string{
		Route:        routeTemplate,
		Relevance:    relevanceTemplate,
		Groundedness: groundednessTemplate,
		Generate:     generateTemplate,
		Rewrite:      rewriteTemplate,
	} {
		if err := m.RegisterString(name, content); err != nil {
			panic(err)
		}
	}
	return m
}
