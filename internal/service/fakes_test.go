package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/btrhorseinf-hub/horse-racing-inf/internal/modelclient"
	"github.com/btrhorseinf-hub/horse-racing-inf/internal/models"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func ptr[T any](v T) *T {
	return &v
}

func raceDay(day int) time.Time {
	return time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC)
}

func testObservation(horse string, day int, top3 bool) models.Observation {
	return models.Observation{
		HorseName:    horse,
		RaceDate:     raceDay(day),
		Jockey:       "Z Purton",
		Trainer:      "J Size",
		ActualWeight: 126,
		Draw:         4,
		WinOdds:      5.0,
		IsTop3:       top3,
	}
}

func testCardEntry(horse string, day int, odds float64) models.RaceCardEntry {
	return models.RaceCardEntry{
		HorseName:    horse,
		RaceDate:     raceDay(day),
		Jockey:       "Z Purton",
		Trainer:      "J Size",
		ActualWeight: 126,
		Draw:         4,
		WinOdds:      odds,
	}
}

// fakeObservationRepo is an in-memory observation store keyed on
// (horse_name, race_date), mirroring the conflict behavior of the real one.
type fakeObservationRepo struct {
	mu           sync.Mutex
	observations []models.Observation
	keys         map[string]struct{}
	batchSizes   []int
	insertErr    error
	getErr       error
}

func newFakeObservationRepo(seed ...models.Observation) *fakeObservationRepo {
	repo := &fakeObservationRepo{keys: make(map[string]struct{})}
	for _, obs := range seed {
		repo.keys[obs.Key()] = struct{}{}
		repo.observations = append(repo.observations, obs)
	}
	return repo
}

func (r *fakeObservationRepo) Insert(ctx context.Context, observation *models.Observation) error {
	_, err := r.InsertBatch(ctx, []models.Observation{*observation})
	return err
}

func (r *fakeObservationRepo) InsertBatch(ctx context.Context, observations []models.Observation) (int, error) {
	if r.insertErr != nil {
		return 0, r.insertErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.batchSizes = append(r.batchSizes, len(observations))

	inserted := 0
	for _, obs := range observations {
		if _, ok := r.keys[obs.Key()]; ok {
			continue
		}
		r.keys[obs.Key()] = struct{}{}
		r.observations = append(r.observations, obs)
		inserted++
	}
	return inserted, nil
}

func (r *fakeObservationRepo) GetAll(ctx context.Context) ([]models.Observation, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Observation, len(r.observations))
	copy(out, r.observations)
	return out, nil
}

func (r *fakeObservationRepo) GetByEntity(ctx context.Context, horseName string) ([]models.Observation, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Observation
	for _, obs := range r.observations {
		if obs.HorseName == horseName {
			out = append(out, obs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaceDate.Before(out[j].RaceDate) })
	return out, nil
}

func (r *fakeObservationRepo) GetByDateRange(ctx context.Context, start, end time.Time) ([]models.Observation, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Observation
	for _, obs := range r.observations {
		if obs.RaceDate.Before(start) || obs.RaceDate.After(end) {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

func (r *fakeObservationRepo) GetEntities(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var names []string
	for _, obs := range r.observations {
		if _, ok := seen[obs.HorseName]; ok {
			continue
		}
		seen[obs.HorseName] = struct{}{}
		names = append(names, obs.HorseName)
	}
	return names, nil
}

func (r *fakeObservationRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observations), nil
}

// fakeHistoryRepo is an in-memory prediction history store.
type fakeHistoryRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]models.PredictionRecord
	order     []uuid.UUID
	saveErr   error
	settleErr error
	getErr    error
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{records: make(map[uuid.UUID]models.PredictionRecord)}
}

func (r *fakeHistoryRepo) Save(ctx context.Context, record *models.PredictionRecord) error {
	return r.SaveBatch(ctx, []models.PredictionRecord{*record})
}

func (r *fakeHistoryRepo) SaveBatch(ctx context.Context, records []models.PredictionRecord) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if _, ok := r.records[rec.ID]; !ok {
			r.order = append(r.order, rec.ID)
		}
		r.records[rec.ID] = rec
	}
	return nil
}

func (r *fakeHistoryRepo) GetRecent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PredictionRecord
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.records[r.order[i]])
	}
	return out, nil
}

func (r *fakeHistoryRepo) GetByDate(ctx context.Context, raceDate time.Time) ([]models.PredictionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PredictionRecord
	for _, id := range r.order {
		if rec := r.records[id]; rec.RaceDate.Equal(raceDate) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) GetUnsettled(ctx context.Context) ([]models.PredictionRecord, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PredictionRecord
	for _, id := range r.order {
		if rec := r.records[id]; rec.ActualResult == models.ResultUnknown {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RaceDate.Before(out[j].RaceDate) })
	return out, nil
}

func (r *fakeHistoryRepo) GetSettled(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PredictionRecord
	for _, id := range r.order {
		if rec := r.records[id]; rec.ActualResult != models.ResultUnknown {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[j].RaceDate.Before(out[i].RaceDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeHistoryRepo) Settle(ctx context.Context, id uuid.UUID, result models.ActualResult) error {
	if r.settleErr != nil {
		return r.settleErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return models.ErrNotFound
	}
	rec.ActualResult = result
	r.records[id] = rec
	return nil
}

func (r *fakeHistoryRepo) get(id uuid.UUID) models.PredictionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}

func (r *fakeHistoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// staticPredictor answers from a fixed probability table and records the
// rows each call asked for.
type staticPredictor struct {
	probs       map[string]float64
	version     string
	err         error
	calls       int
	lastRows    []models.FeatureRow
	invalidated []string
}

func (p *staticPredictor) PredictBatch(ctx context.Context, rows []models.FeatureRow) (*modelclient.Prediction, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.calls++
	p.lastRows = rows

	probs := make([]float64, len(rows))
	for i, row := range rows {
		probs[i] = p.probs[row.HorseName]
	}
	return &modelclient.Prediction{Probabilities: probs, ModelVersion: p.version}, nil
}

func (p *staticPredictor) InvalidateRow(horseName string, raceDate time.Time) {
	p.invalidated = append(p.invalidated, horseName+"|"+raceDate.Format("2006-01-02"))
}
