package ai

import "fmt"

// ExplanationServiceError reports a failed anomaly-explanation call. The
// controller renders it inline in the details pane instead of failing the
// whole operation.
type ExplanationServiceError struct {
	Provider string
	Err      error
}

func (e *ExplanationServiceError) Error() string {
	return fmt.Sprintf("explanation service (%s): %v", e.Provider, e.Err)
}

func (e *ExplanationServiceError) Unwrap() error {
	return e.Err
}

// ChatServiceError reports a failed chat exchange. The controller renders
// it as an assistant-authored error bubble.
type ChatServiceError struct {
	Provider string
	Err      error
}

func (e *ChatServiceError) Error() string {
	return fmt.Sprintf("chat service (%s): %v", e.Provider, e.Err)
}

func (e *ChatServiceError) Unwrap() error {
	return e.Err
}
