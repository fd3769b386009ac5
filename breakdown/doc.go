// Package breakdown implements collaborative task decomposition: a seed
// decomposition proposed to collaborators, revised while in draft, approved
// or rejected by vote, and scored for quality once approved. Subtasks form a
// dependency DAG via prerequisite ids; cycles are rejected at update time.
package breakdown
