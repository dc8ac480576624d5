package llm

import "fmt"

// FirstChoiceText returns the text content of a response's first
// choice. A nil response or one carrying no choices is an error.
func FirstChoiceText(resp *ChatResponse) (string, error) {
	switch {
	case resp == nil:
		return "", fmt.Errorf("nil ChatResponse")
	case len(resp.Choices) == 0:
		return "", fmt.Errorf("empty choices in ChatResponse (model returned no choices)")
	}
	return resp.Choices[0].Message.Content, nil
}
