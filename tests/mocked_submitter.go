package tests

import (
	"context"
	"sync"

	"github.com/getlago/lago/billing-processor/tasks"
)

type MockSubmitter struct {
	Errors map[tasks.TaskType]error

	mu    sync.Mutex
	tasks []tasks.Task
}

func (ms *MockSubmitter) Submit(ctx context.Context, task tasks.Task) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.Errors[task.Type]; err != nil {
		return err
	}

	ms.tasks = append(ms.tasks, task)
	return nil
}

func (ms *MockSubmitter) Tasks() []tasks.Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return append([]tasks.Task(nil), ms.tasks...)
}

func (ms *MockSubmitter) TasksOfType(taskType tasks.TaskType) []tasks.Task {
	result := make([]tasks.Task, 0)
	for _, task := range ms.Tasks() {
		if task.Type == taskType {
			result = append(result, task)
		}
	}

	return result
}
