// Package types provides shared domain types for the exam-study indexing system.
//
// The types here are used by both pipelines: the bulk indexer that turns a
// folder tree of study PDFs into vector-searchable content, and the exam-notice
// pipeline that turns an uploaded notice into a persisted study plan.
//
// # Core Types
//
// Discipline is the controlled vocabulary every piece of content is filed under.
// It is created on first encounter and never deleted:
//
//	d := &types.Discipline{
//	    Slug: "direito-constitucional",
//	    Name: "Direito Constitucional",
//	    Area: types.AreaJuridica,
//	}
//
// IndexedContent is one processed document. SourceKey identifies the source
// document and makes indexing idempotent:
//
//	c := &types.IndexedContent{
//	    Kind:      types.KindSummary,
//	    Title:     "Controle de constitucionalidade",
//	    SourceKey: "/bank/DIREITO CONSTITUCIONAL/controle.pdf",
//	}
//
// # Notice Lifecycle
//
// ExamNotice moves through a fixed state machine:
//
//	QUEUED -> PARSING -> MAPPING -> PLANNING -> ACTIVE
//
// with ERROR reachable from any state. Each run is tracked by a ProcessingJob
// whose Progress never decreases. A successful run ends with a StudyPlan.
package types
