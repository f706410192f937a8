package pipeline

import (
	"datagen_platform/datagen/templates"
)

// Loader holds the expanded task list as the pipeline's input stream. The
// list is shared read-only across all branches; no branch may mutate it.
type Loader struct {
	tasks []templates.TaskDescription
}

func NewLoader(tasks []templates.TaskDescription) *Loader {
	return &Loader{tasks: tasks}
}

func (l *Loader) Len() int {
	return len(l.tasks)
}

func (l *Loader) Tasks() []templates.TaskDescription {
	return l.tasks
}

// Batches windows the task list in submission order. Every branch consumes
// the same windows; order within a branch is what downstream id assignment
// relies on.
func (l *Loader) Batches(size int) [][]templates.TaskDescription {
	if size <= 0 {
		size = 1
	}

	batches := make([][]templates.TaskDescription, 0, (len(l.tasks)+size-1)/size)
	for start := 0; start < len(l.tasks); start += size {
		end := start + size
		if end > len(l.tasks) {
			end = len(l.tasks)
		}
		batches = append(batches, l.tasks[start:end])
	}

	return batches
}
