package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sync/atomic"
)

var (
	batchesAccepted     atomic.Int64
	batchesCompleted    atomic.Int64
	batchesPublished    atomic.Int64
	batchesFailed       atomic.Int64
	recordsProcessed    atomic.Int64
	submissionsDone     atomic.Int64
	submissionsFailed   atomic.Int64
	latestQualityScore  atomic.Uint64
	averageQualityScore atomic.Uint64
)

func Init() {}

// ObserveBatchCounts records the batch population by status from the
// latest sampling pass.
func ObserveBatchCounts(accepted, completed, published, failed int64) {
	batchesAccepted.Store(accepted)
	batchesCompleted.Store(completed)
	batchesPublished.Store(published)
	batchesFailed.Store(failed)
}

func ObserveRecordsProcessed(total int64) {
	recordsProcessed.Store(total)
}

func ObserveSubmissionCounts(submitted, failed int64) {
	submissionsDone.Store(submitted)
	submissionsFailed.Store(failed)
}

func ObserveQualityScores(latest, average float64) {
	latestQualityScore.Store(math.Float64bits(latest))
	averageQualityScore.Store(math.Float64bits(average))
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP tm2health_pipeline_batches_accepted_total Number of processing batches currently accepted and awaiting completion.\n")
	fmt.Fprintf(w, "# TYPE tm2health_pipeline_batches_accepted_total gauge\n")
	fmt.Fprintf(w, "tm2health_pipeline_batches_accepted_total %d\n", batchesAccepted.Load())

	fmt.Fprintf(w, "# HELP tm2health_pipeline_batches_completed_total Number of processing batches completed but not yet announced on the bus.\n")
	fmt.Fprintf(w, "# TYPE tm2health_pipeline_batches_completed_total gauge\n")
	fmt.Fprintf(w, "tm2health_pipeline_batches_completed_total %d\n", batchesCompleted.Load())

	fmt.Fprintf(w, "# HELP tm2health_pipeline_batches_published_total Number of processing batches published for submission.\n")
	fmt.Fprintf(w, "# TYPE tm2health_pipeline_batches_published_total gauge\n")
	fmt.Fprintf(w, "tm2health_pipeline_batches_published_total %d\n", batchesPublished.Load())

	fmt.Fprintf(w, "# HELP tm2health_pipeline_batches_failed_total Number of processing batches that failed.\n")
	fmt.Fprintf(w, "# TYPE tm2health_pipeline_batches_failed_total gauge\n")
	fmt.Fprintf(w, "tm2health_pipeline_batches_failed_total %d\n", batchesFailed.Load())

	fmt.Fprintf(w, "# HELP tm2health_pipeline_records_processed_total Number of source records processed across all batches.\n")
	fmt.Fprintf(w, "# TYPE tm2health_pipeline_records_processed_total gauge\n")
	fmt.Fprintf(w, "tm2health_pipeline_records_processed_total %d\n", recordsProcessed.Load())

	fmt.Fprintf(w, "# HELP tm2health_emr_submissions_submitted_total Number of patient bundles delivered to the EMR system.\n")
	fmt.Fprintf(w, "# TYPE tm2health_emr_submissions_submitted_total gauge\n")
	fmt.Fprintf(w, "tm2health_emr_submissions_submitted_total %d\n", submissionsDone.Load())

	fmt.Fprintf(w, "# HELP tm2health_emr_submissions_failed_total Number of patient bundles currently in a failed state.\n")
	fmt.Fprintf(w, "# TYPE tm2health_emr_submissions_failed_total gauge\n")
	fmt.Fprintf(w, "tm2health_emr_submissions_failed_total %d\n", submissionsFailed.Load())

	fmt.Fprintf(w, "# HELP tm2health_data_quality_score_latest Quality score of the most recent completed batch.\n")
	fmt.Fprintf(w, "# TYPE tm2health_data_quality_score_latest gauge\n")
	fmt.Fprintf(w, "tm2health_data_quality_score_latest %g\n", math.Float64frombits(latestQualityScore.Load()))

	fmt.Fprintf(w, "# HELP tm2health_data_quality_score_avg_7d Average quality score over the last seven days of batches.\n")
	fmt.Fprintf(w, "# TYPE tm2health_data_quality_score_avg_7d gauge\n")
	fmt.Fprintf(w, "tm2health_data_quality_score_avg_7d %g\n", math.Float64frombits(averageQualityScore.Load()))
}
