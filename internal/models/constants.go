package models

const (
	DefaultChunkSize    = 10000 // characters
	DefaultChunkOverlap = 1000  // characters
	DefaultTopK         = 4
	DefaultTemperature  = 0.3

	// NotAvailableAnswer is what the model is instructed to reply when the context is insufficient.
	NotAvailableAnswer = "answer is not available in the context"
)

var (
	QAPromptTemplate = `
Answer the question as detailed as possible from the provided context, make sure to provide all the details, if the answer is not in
provided context just say, "` + NotAvailableAnswer + `"

Context:
 {{.context}}?

Question:
{{.question}}

Answer:
`
)
