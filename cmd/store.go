package cmd

import "cliptransfer/internal/task"

func openStore() (*task.Store, error) {
	return task.Open(task.StoreDir(), logger)
}
