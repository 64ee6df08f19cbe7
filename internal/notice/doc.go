// Package notice turns an uploaded exam notice into structured metadata and
// a study plan.
//
// Submission and processing are decoupled. Service.Submit stores the notice
// and a job, puts a Task on a Queue and returns a Handle straight away. A
// queue worker runs Processor.Process, which walks the notice through
//
//	QUEUED -> PARSING -> MAPPING -> PLANNING -> ACTIVE
//
// and reports stage and progress on the job at fixed checkpoints
// (15, 35, 60, 80, 100). Callers poll Service.Status.
//
//	proc := notice.NewProcessor(notice.ProcessorDeps{Store: store, LLM: model})
//	queue := notice.NewQueue(0, proc.Process, logger)
//	queue.Start(ctx, 2)
//	defer queue.Close()
//
//	svc := notice.NewService(notice.ServiceConfig{Store: store, Queue: queue})
//	h, err := svc.Submit(ctx, notice.Upload{OwnerID: "me", FileName: "edital.pdf", Content: data})
//
// Any failure moves the notice to ERROR and the job to FAILED with the
// message and an error trace. A response from the extraction model that is
// not the expected JSON object is such a failure; it is never retried.
package notice
