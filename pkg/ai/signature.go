package ai

import (
	"fmt"
	"strings"
)

// SupportedScales lists the point scales the marking prompts are written for.
// A rubric asking for any other scale is rejected rather than guessed at.
var SupportedScales = []int{1, 2, 3, 4, 6, 10}

// Field is one named input or output of a scoring signature.
type Field struct {
	Name string
	Desc string
}

// Signature is a declarative description of a scoring call: what the model is
// told to do, which fields it receives and which it must return. One
// signature exists per (marker name, point scale) pair.
type Signature struct {
	Name      string
	Doc       string
	Inputs    []Field
	Outputs   []Field
	MaxPoints int
}

// CriterionSignature builds the signature used to grade a single rubric
// criterion on a 0..maxPoints scale.
func CriterionSignature(maxPoints int) (Signature, error) {
	if !scaleSupported(maxPoints) {
		return Signature{}, fmt.Errorf("max points must be one of %v, got %d", SupportedScales, maxPoints)
	}

	return Signature{
		Name: fmt.Sprintf("criterion_marker_%d", maxPoints),
		Doc:  fmt.Sprintf("Grade a code snippet according to how well it meets a specific criterion on a scale of 0-%d", maxPoints),
		Inputs: []Field{
			{Name: "code", Desc: "Student code snippet to evaluate"},
			{Name: "task_description", Desc: "Description of the programming task"},
			{Name: "criterion", Desc: "Specific criterion to evaluate against"},
		},
		Outputs: []Field{
			{Name: "score", Desc: fmt.Sprintf("Numeric grade between 0-%d", maxPoints)},
			{Name: "reasoning", Desc: "Brief explanation of the score"},
		},
		MaxPoints: maxPoints,
	}, nil
}

// SystemPrompt renders the signature into the system message for the chat
// completion call. The model is asked for a JSON object with exactly the
// output fields.
func (s Signature) SystemPrompt() string {
	b := strings.Builder{}
	b.WriteString(s.Doc)
	b.WriteString("\n\nRespond with a JSON object containing:")
	for _, f := range s.Outputs {
		fmt.Fprintf(&b, "\n- %q: %s", f.Name, f.Desc)
	}
	b.WriteString("\nReturn only the JSON object.")
	return b.String()
}

// UserPrompt renders the request into the user message, one section per
// input field.
func (s Signature) UserPrompt(req ScoreRequest) string {
	values := map[string]string{
		"code":             req.Code,
		"task_description": req.TaskDescription,
		"criterion":        req.Criterion,
	}

	b := strings.Builder{}
	for _, f := range s.Inputs {
		fmt.Fprintf(&b, "## %s\n%s\n\n", f.Name, values[f.Name])
	}
	b.WriteString("Return JSON.")
	return b.String()
}

func scaleSupported(maxPoints int) bool {
	for _, s := range SupportedScales {
		if s == maxPoints {
			return true
		}
	}
	return false
}
