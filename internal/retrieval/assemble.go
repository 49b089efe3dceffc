package retrieval

import (
	"fmt"

	"github.com/dshills/codebase-context/pkg/types"
)

// InstructionsName names the trailing item of every result.
const InstructionsName = "Instructions"

// Instructions is the content of the trailing item.
const Instructions = "Use the above code to answer the following question. You should not reference any files outside of what is shown, unless they are commonly known files, like a .gitignore or package.json. Reference the filenames whenever possible. If there isn't enough information to answer the question, suggest where the user might look to learn more."

// InstructionsItem returns the trailing instructions item.
func InstructionsItem() types.ContextItem {
	return types.ContextItem{
		Name:        InstructionsName,
		Description: InstructionsName,
		Content:     Instructions,
	}
}

// Assemble renders chunks in order followed by the instructions item.
// An empty input is types.ErrNoResults.
func Assemble(chunks []types.Chunk) ([]types.ContextItem, error) {
	if len(chunks) == 0 {
		return nil, types.ErrNoResults
	}

	items := make([]types.ContextItem, 0, len(chunks)+1)
	for _, c := range chunks {
		span := fmt.Sprintf("(%d-%d)", c.StartLine, c.EndLine)
		name := c.BaseName() + " " + span
		items = append(items, types.ContextItem{
			Name:        name,
			Description: c.FilePath + " " + span,
			Content:     "```" + name + "\n" + c.Content + "\n```",
		})
	}
	return append(items, InstructionsItem()), nil
}
