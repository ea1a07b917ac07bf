package prompt

import "strings"

// Policy names the grounding instruction chosen for a turn.
type Policy string

const (
	// PolicyGrounded restricts the answer to retrieved excerpts.
	PolicyGrounded Policy = "grounded"
	// PolicyNoMatch tells the model to report that the corpus has nothing relevant.
	PolicyNoMatch Policy = "no_match"
	// PolicyGeneric is an unconstrained assistant instruction.
	PolicyGeneric Policy = "generic"
)

const excerptSeparator = "\n\n---\n\n"

const groundedInstruction = `You are a helpful assistant that answers questions using only the reference excerpts below.
Do not use outside knowledge. If the excerpts do not contain the answer, say explicitly that the provided documents do not cover it.

Reference excerpts:

`

const noMatchInstruction = `You are a helpful assistant that answers questions from a reference document.
No relevant information for the user's question was found in the document.
Tell the user plainly that the document does not contain information about their question. Do not answer from general knowledge.`

const genericInstruction = `You are a helpful, concise assistant.`

func systemMessage(policy Policy, excerpts []string) Message {
	var content string
	switch policy {
	case PolicyGrounded:
		content = groundedInstruction + strings.Join(excerpts, excerptSeparator)
	case PolicyNoMatch:
		content = noMatchInstruction
	default:
		content = genericInstruction
	}
	return Message{Role: RoleSystem, Content: content}
}
