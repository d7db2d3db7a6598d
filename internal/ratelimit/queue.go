package ratelimit

import "time"

// staleAfter discards queued work nobody managed to execute within the hour.
const staleAfter = time.Hour

const defaultMaxRetries = 3

// Request is one unit of queued work, created when admission was denied
// and the caller opted to wait.
type Request struct {
	ID          string    `json:"id"`
	API         string    `json:"api"`
	Symbol      string    `json:"symbol"`
	RequestType string    `json:"request_type"`
	Priority    Priority  `json:"priority"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	RetryCount  int       `json:"retry_count"`
	MaxRetries  int       `json:"max_retries"`
}

// priorityQueue holds four FIFO tiers. Not safe for concurrent use; the
// owning aggregate's mutex covers it.
type priorityQueue struct {
	tiers map[Priority][]*Request
}

func newPriorityQueue() *priorityQueue {
	tiers := make(map[Priority][]*Request, len(drainOrder))
	for _, p := range drainOrder {
		tiers[p] = nil
	}
	return &priorityQueue{tiers: tiers}
}

func (q *priorityQueue) push(r *Request) {
	q.tiers[r.Priority] = append(q.tiers[r.Priority], r)
}

// pushFront puts a popped-but-not-admissible head back where it was.
func (q *priorityQueue) pushFront(r *Request) {
	q.tiers[r.Priority] = append([]*Request{r}, q.tiers[r.Priority]...)
}

// pop removes and returns the head of one tier, nil when empty.
func (q *priorityQueue) pop(p Priority) *Request {
	tier := q.tiers[p]
	if len(tier) == 0 {
		return nil
	}
	r := tier[0]
	q.tiers[p] = tier[1:]
	return r
}

func (q *priorityQueue) depth(p Priority) int {
	return len(q.tiers[p])
}

func (q *priorityQueue) depths() map[string]int {
	d := make(map[string]int, len(q.tiers))
	for p, tier := range q.tiers {
		d[p.String()] = len(tier)
	}
	return d
}

func (q *priorityQueue) total() int {
	n := 0
	for _, tier := range q.tiers {
		n += len(tier)
	}
	return n
}
