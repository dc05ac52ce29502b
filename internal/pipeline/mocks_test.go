package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/idan5353/video-threat-detection/internal/realtime"
	"github.com/idan5353/video-threat-detection/internal/rekognition"
	"github.com/idan5353/video-threat-detection/internal/report"
	"github.com/idan5353/video-threat-detection/internal/store"
	"github.com/idan5353/video-threat-detection/pkg/models"
)

// --- mocks ---

type startCall struct {
	Kind models.JobKind
	Req  rekognition.StartRequest
}

type mockBackend struct {
	mu         sync.Mutex
	starts     []startCall
	startErr   map[models.JobKind]error
	detections map[string]models.Detections
	fetchErr   map[string]error
	panicOn    string
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		startErr:   make(map[models.JobKind]error),
		detections: make(map[string]models.Detections),
		fetchErr:   make(map[string]error),
	}
}

func (b *mockBackend) StartJob(_ context.Context, kind models.JobKind, req rekognition.StartRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts = append(b.starts, startCall{Kind: kind, Req: req})
	if err := b.startErr[kind]; err != nil {
		return "", err
	}
	return "job-" + kind.Tag(), nil
}

func (b *mockBackend) FetchDetections(_ context.Context, kind models.JobKind, jobID string) (models.Detections, error) {
	if jobID == b.panicOn {
		panic("backend exploded")
	}
	if err := b.fetchErr[jobID]; err != nil {
		return models.Detections{}, err
	}
	d := b.detections[jobID]
	d.Kind = kind
	return d, nil
}

func (b *mockBackend) startedKinds() []models.JobKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]models.JobKind, len(b.starts))
	for i, s := range b.starts {
		kinds[i] = s.Kind
	}
	return kinds
}

type mockRequestStore struct {
	mu        sync.Mutex
	requests  map[string]*models.AnalysisRequest
	jobs      []*models.Job
	getErr    error
	upsertErr error
}

func newMockRequestStore() *mockRequestStore {
	return &mockRequestStore{requests: make(map[string]*models.AnalysisRequest)}
}

func (s *mockRequestStore) UpsertAnalysisRequest(_ context.Context, req *models.AnalysisRequest) (*models.AnalysisRequest, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.requests[req.ContentHash]
	if !ok {
		cp := *req
		s.requests[req.ContentHash] = &cp
		out := cp
		return &out, nil
	}
	for _, kind := range models.DispatchOrder {
		if id := req.JobID(kind); id != "" {
			existing.SetJobID(kind, id)
		}
	}
	out := *existing
	return &out, nil
}

func (s *mockRequestStore) GetAnalysisRequestByHash(_ context.Context, hash string) (*models.AnalysisRequest, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *mockRequestStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

type mockAnnouncer struct {
	started []models.JobGroupInfo
	failed  []string
	err     error
}

func (a *mockAnnouncer) Started(_ context.Context, jobs models.JobGroupInfo) error {
	a.started = append(a.started, jobs)
	return a.err
}

func (a *mockAnnouncer) Failed(_ context.Context, videoKey string, _ error) error {
	a.failed = append(a.failed, videoKey)
	return a.err
}

type statusUpdate struct {
	JobID  string
	Status string
}

type mockJobs struct {
	mu      sync.Mutex
	updates []statusUpdate
	err     error
}

func (j *mockJobs) UpdateJobStatus(_ context.Context, jobID, status string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.updates = append(j.updates, statusUpdate{JobID: jobID, Status: status})
	return j.err
}

type mockReports struct {
	mu    sync.Mutex
	saved []models.ThreatReport
	keys  []string
	err   error
}

func (r *mockReports) Save(_ context.Context, rep models.ThreatReport) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, rep)
	if r.err != nil {
		return "", r.err
	}
	key := report.Key(rep)
	r.keys = append(r.keys, key)
	return key, nil
}

type mockAlerts struct {
	mu       sync.Mutex
	threats  []models.ThreatReport
	videos   []models.VideoInfo
	failures []string
	err      error
}

func (a *mockAlerts) PublishThreat(_ context.Context, rep models.ThreatReport, video models.VideoInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.threats = append(a.threats, rep)
	a.videos = append(a.videos, video)
	return a.err
}

func (a *mockAlerts) PublishJobFailure(_ context.Context, jobID, api string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, jobID+"/"+api)
	return a.err
}

type metricCall struct {
	API   string
	Count int
}

type mockThreatMetrics struct {
	calls []metricCall
}

func (m *mockThreatMetrics) ThreatsDetected(_ context.Context, api string, count int) error {
	m.calls = append(m.calls, metricCall{API: api, Count: count})
	return nil
}

type mockBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (b *mockBroadcaster) Broadcast(_ context.Context, payload []byte) (realtime.FanoutResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	if b.err != nil {
		return realtime.FanoutResult{}, b.err
	}
	return realtime.FanoutResult{Total: 1, Succeeded: 1}, nil
}

type mockSizes struct {
	size int64
	err  error
}

func (s *mockSizes) Size(_ context.Context, _, _ string) (int64, error) {
	return s.size, s.err
}

var errBoom = errors.New("boom")
