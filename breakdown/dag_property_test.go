package breakdown

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/agentswarm/types"
)

// buildSubtasks turns an adjacency seed into a subtask list where subtask i
// may depend only on subtasks selected by the seed bits below it.
func buildSubtasks(n int, seed int64) []Subtask {
	subtasks := make([]Subtask, n)
	bit := 0
	for i := 0; i < n; i++ {
		st := Subtask{
			ID:          fmt.Sprintf("st-%d", i),
			Description: fmt.Sprintf("subtask %d", i),
		}
		for j := 0; j < i; j++ {
			if seed&(1<<bit) != 0 {
				st.Prerequisites = append(st.Prerequisites, fmt.Sprintf("st-%d", j))
			}
			bit++
		}
		subtasks[i] = st
	}
	return subtasks
}

func TestProperty_ForwardOnlyPrerequisitesAlwaysValidate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("prerequisites pointing only at earlier subtasks never form a cycle", prop.ForAll(
		func(n int, seed int64) bool {
			return validateSubtasks(buildSubtasks(n, seed)) == nil
		},
		gen.IntRange(1, 10),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestProperty_BackEdgeAlwaysDetected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("closing a chain back onto an earlier subtask is always rejected", prop.ForAll(
		func(n int, from, to int) bool {
			// Start from a plain chain st-0 <- st-1 <- ... <- st-(n-1) and
			// add one back edge from an earlier subtask to a later one.
			subtasks := make([]Subtask, n)
			for i := 0; i < n; i++ {
				subtasks[i] = Subtask{
					ID:          fmt.Sprintf("st-%d", i),
					Description: fmt.Sprintf("subtask %d", i),
				}
				if i > 0 {
					subtasks[i].Prerequisites = []string{fmt.Sprintf("st-%d", i-1)}
				}
			}
			earlier := from % n
			later := earlier + 1 + to%(n-earlier)
			if later >= n {
				later = n - 1
			}
			if later == earlier {
				return true
			}
			subtasks[earlier].Prerequisites = append(subtasks[earlier].Prerequisites,
				fmt.Sprintf("st-%d", later))

			err := validateSubtasks(subtasks)
			return err != nil && types.IsValidation(err)
		},
		gen.IntRange(2, 10),
		gen.IntRange(0, 100),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
