package redisq

import (
	"fmt"

	"github.com/kiranshivaraju/sketchforge/pkg/models"
)

// keys builds the Redis key layout for one queue prefix. Every key of a job
// type shares the "{prefix}:{type}:" namespace so Clear can SCAN it.
type keys struct {
	prefix string
}

func (k keys) namespace(t models.JobType) string {
	return fmt.Sprintf("%s:%s:", k.prefix, t)
}

func (k keys) waiting(t models.JobType) string   { return k.namespace(t) + "waiting" }
func (k keys) delayed(t models.JobType) string   { return k.namespace(t) + "delayed" }
func (k keys) active(t models.JobType) string    { return k.namespace(t) + "active" }
func (k keys) completed(t models.JobType) string { return k.namespace(t) + "completed" }
func (k keys) failed(t models.JobType) string    { return k.namespace(t) + "failed" }

func (k keys) job(t models.JobType, id string) string {
	return k.namespace(t) + "job:" + id
}

// waitingScore sorts higher priorities first, then older jobs first.
func waitingScore(job *models.Job) float64 {
	return float64(100-int64(job.Options.Priority))*1e13 + float64(job.CreatedAt.UnixMilli())
}
