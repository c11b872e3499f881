package domain

// RefusalAnswer is the reply the model is instructed to give when the
// retrieved context does not contain the answer.
const RefusalAnswer = "I don't know. The answer is not in the provided documents."

// Turn is one question and its answer.
type Turn struct {
	Question string
	Answer   string
}

// Memory is the ordered conversation history of a single session.
// It only grows; failed turns are never appended.
type Memory struct {
	turns []Turn
}

// NewMemory returns an empty conversation memory.
func NewMemory() *Memory { return &Memory{} }

// Append records a completed turn.
func (m *Memory) Append(question, answer string) {
	m.turns = append(m.turns, Turn{Question: question, Answer: answer})
}

// Turns returns a copy of the recorded turns, oldest first.
func (m *Memory) Turns() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Len returns the number of recorded turns.
func (m *Memory) Len() int { return len(m.turns) }
