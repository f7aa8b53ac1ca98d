package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulator(t *testing.T) {
	tests := []struct {
		name   string
		run    func(a *Accumulator) Turn
		want   Turn
		input  string
		output string
	}{
		{
			name: "partials concatenate in arrival order",
			run: func(a *Accumulator) Turn {
				a.AppendInput("Add ")
				a.AppendInput("a task")
				a.AppendOutput(" Sure,")
				a.AppendOutput(" done. ")
				return a.Complete()
			},
			want: Turn{User: "Add a task", Assistant: "Sure, done."},
		},
		{
			name: "whitespace only yields empty turn",
			run: func(a *Accumulator) Turn {
				a.AppendInput("  ")
				a.AppendOutput("\n")
				return a.Complete()
			},
			want: Turn{},
		},
		{
			name: "interrupt discards the turn",
			run: func(a *Accumulator) Turn {
				a.AppendInput("hello")
				a.AppendOutput("I was saying")
				a.Interrupt()
				return a.Complete()
			},
			want: Turn{},
		},
		{
			name: "text after interrupt belongs to next turn",
			run: func(a *Accumulator) Turn {
				a.AppendOutput("cut off")
				a.Interrupt()
				a.AppendInput("stop")
				return a.Complete()
			},
			want: Turn{User: "stop"},
		},
		{
			name: "pending is kept until complete",
			run: func(a *Accumulator) Turn {
				a.AppendInput("still talking")
				return Turn{}
			},
			want:  Turn{},
			input: "still talking",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Accumulator
			got := tt.run(&a)
			assert.Equal(t, tt.want, got)

			in, out := a.Pending()
			assert.Equal(t, tt.input, in)
			assert.Equal(t, tt.output, out)
		})
	}
}

func TestAccumulator_CompleteResets(t *testing.T) {
	var a Accumulator
	a.AppendInput("one")
	a.Complete()
	a.AppendInput("two")

	assert.Equal(t, Turn{User: "two"}, a.Complete())
}
