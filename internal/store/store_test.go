package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/vstask/internal/model"
)

type backend interface {
	Create(ctx context.Context, rec *model.GameRecord) (string, error)
	Load(ctx context.Context, handle string) (*model.GameRecord, error)
	Update(ctx context.Context, handle string, fn func(*model.GameRecord) error) error
	List(ctx context.Context) ([]model.GameRecord, error)
	SaveSummary(ctx context.Context, sum model.Summary) error
	LoadSummary(ctx context.Context) (*model.Summary, error)
	Close() error
}

func backends(t *testing.T) map[string]func(t *testing.T) (backend, string) {
	t.Helper()
	return map[string]func(t *testing.T) (backend, string){
		"sqlite": func(t *testing.T) (backend, string) {
			st, err := Open(filepath.Join(t.TempDir(), "vstask.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			return st, "missing-game"
		},
		"dir": func(t *testing.T) (backend, string) {
			st, err := OpenDir(filepath.Join(t.TempDir(), "logs"))
			require.NoError(t, err)
			return st, st.RecordPath("missing-game")
		},
		"badger": func(t *testing.T) (backend, string) {
			st, err := OpenBadger(BadgerConfig{InMemory: true})
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			return st, "missing-game"
		},
	}
}

func newRecord(id string, start time.Time) *model.GameRecord {
	return &model.GameRecord{
		GameID:    id,
		StartTime: start,
		Choices:   []model.Choice{},
		Metadata:  model.RecordMetadata{FileCreated: start},
	}
}

func TestBackends_RoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, _ := open(t)
			ctx := context.Background()
			start := time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC)
			done := start.Add(42 * time.Second)
			duration := 42.0
			success := true

			rec := newRecord("g1", start)
			rec.Choices = append(rec.Choices, model.Choice{
				Round: 0, Quadrant: 2, CueName: "C", Color: model.ColorRed,
				Timestamp: start.Add(time.Second), ChoiceNumber: 1,
			})
			rec.FinalChoice = &model.FinalChoice{ChosenQuadrant: 2, Correct: true, Score: 100, BiasedQuadrant: 2}
			rec.CompletionTime = &done
			rec.TotalDuration = &duration
			rec.Success = &success

			handle, err := st.Create(ctx, rec)
			require.NoError(t, err)
			require.NotEmpty(t, handle)

			loaded, err := st.Load(ctx, handle)
			require.NoError(t, err)
			if diff := cmp.Diff(rec, loaded); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBackends_UpdateAndMissing(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, missing := open(t)
			ctx := context.Background()
			handle, err := st.Create(ctx, newRecord("g1", time.Now().UTC()))
			require.NoError(t, err)

			err = st.Update(ctx, handle, func(rec *model.GameRecord) error {
				rec.Choices = append(rec.Choices, model.Choice{CueName: "A", ChoiceNumber: 1})
				return nil
			})
			require.NoError(t, err)

			loaded, err := st.Load(ctx, handle)
			require.NoError(t, err)
			require.Len(t, loaded.Choices, 1)

			err = st.Update(ctx, missing, func(rec *model.GameRecord) error { return nil })
			require.ErrorIs(t, err, ErrNotFound)
			_, err = st.Load(ctx, missing)
			require.ErrorIs(t, err, ErrNotFound)

			records, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, 1, "update on a missing handle must not create a record")
		})
	}
}

func TestBackends_UpdateCallbackErrorKeepsRecord(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, _ := open(t)
			ctx := context.Background()
			handle, err := st.Create(ctx, newRecord("g1", time.Now().UTC()))
			require.NoError(t, err)

			boom := errors.New("boom")
			err = st.Update(ctx, handle, func(rec *model.GameRecord) error {
				rec.Choices = append(rec.Choices, model.Choice{CueName: "A"})
				return boom
			})
			require.ErrorIs(t, err, boom)

			loaded, err := st.Load(ctx, handle)
			require.NoError(t, err)
			require.Empty(t, loaded.Choices)
		})
	}
}

func TestBackends_CreateDuplicate(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, _ := open(t)
			ctx := context.Background()
			_, err := st.Create(ctx, newRecord("g1", time.Now().UTC()))
			require.NoError(t, err)
			_, err = st.Create(ctx, newRecord("g1", time.Now().UTC()))
			require.ErrorIs(t, err, ErrExists)
		})
	}
}

func TestBackends_ListOrderedByStart(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, _ := open(t)
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			for _, id := range []string{"c", "a", "b"} {
				offset := map[string]time.Duration{"a": 0, "b": time.Minute, "c": 2 * time.Minute}[id]
				_, err := st.Create(ctx, newRecord(id, base.Add(offset)))
				require.NoError(t, err)
			}
			records, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, 3)
			require.Equal(t, []string{"a", "b", "c"}, []string{records[0].GameID, records[1].GameID, records[2].GameID})
		})
	}
}

func TestBackends_Summary(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st, _ := open(t)
			ctx := context.Background()
			sum, err := st.LoadSummary(ctx)
			require.NoError(t, err)
			require.Nil(t, sum)

			want := model.Summary{
				TotalGames:  3,
				SuccessRate: 66.66666666666667,
				PerformanceDistribution: model.Histogram{
					Bins:   []float64{-100, -50, 0, 50, 100},
					Counts: []int{1, 0, 0, 2},
				},
				LearningCurve: model.LearningCurve{WindowSize: 50, Rates: []float64{66.66666666666667}},
				LastUpdated:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			}
			require.NoError(t, st.SaveSummary(ctx, want))
			want.TotalGames = 4
			require.NoError(t, st.SaveSummary(ctx, want))

			got, err := st.LoadSummary(ctx)
			require.NoError(t, err)
			if diff := cmp.Diff(&want, got); diff != "" {
				t.Fatalf("summary mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDirStore_FileFormat(t *testing.T) {
	st, err := OpenDir(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := st.Create(ctx, newRecord("abc", time.Now().UTC()))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(st.Dir(), "game_abc.json"), handle)

	data, err := os.ReadFile(handle)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"game_id", "start_time", "choices", "final_choice", "completion_time", "total_duration", "success"} {
		require.Contains(t, raw, key)
	}
	require.Nil(t, raw["final_choice"])
	require.Nil(t, raw["completion_time"])
	require.Equal(t, []any{}, raw["choices"])
}

func TestDirStore_RejectsForeignHandle(t *testing.T) {
	st, err := OpenDir(t.TempDir())
	require.NoError(t, err)
	outside := filepath.Join(t.TempDir(), "game_x.json")
	require.NoError(t, os.WriteFile(outside, []byte(`{"game_id":"x"}`), 0o644))

	_, err = st.Load(context.Background(), outside)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDirStore_ListSkipsSummaryAndStrayFiles(t *testing.T) {
	st, err := OpenDir(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = st.Create(ctx, newRecord("g1", time.Now().UTC()))
	require.NoError(t, err)
	require.NoError(t, st.SaveSummary(ctx, model.Summary{TotalGames: 1}))
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir(), "notes.txt"), []byte("x"), 0o644))

	records, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestDirStore_CorruptRecordFailsList(t *testing.T) {
	st, err := OpenDir(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(st.RecordPath("bad"), []byte("{not json"), 0o644))

	_, err = st.List(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestWriteFileAtomic_ReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game_a.json")
	require.NoError(t, writeFileAtomic(path, []byte(`{"v":1}`)))
	require.NoError(t, writeFileAtomic(path, []byte(`{"v":2}`)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"v":2}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "game_a.json", entries[0].Name())
}
