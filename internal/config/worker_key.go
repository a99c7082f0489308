package config

type WorkerKeyStruct struct {
	PersistAttemptsQueue string
	PersistProgressQueue string
	PersistResultsQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAttemptsQueue: "persist_attempts_queue",
	PersistProgressQueue: "persist_progress_queue",
	PersistResultsQueue:  "persist_results_queue",
}
