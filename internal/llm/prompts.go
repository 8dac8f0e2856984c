package llm

import "fmt"

// SystemPrompt restricts the model to the supplied context.
const SystemPrompt = `You are a helpful assistant that answers questions using only the provided context.

Rules:
- Base your answer solely on the context below. Do not use outside knowledge.
- If the context does not contain the answer, say that you could not find it in the documents.
- Cite the source document and page for the facts you use, e.g. (report.pdf, page 3).
- Be concise and accurate.`

// UserPrompt formats the question and context sent with SystemPrompt.
func UserPrompt(question, context string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", context, question)
}
