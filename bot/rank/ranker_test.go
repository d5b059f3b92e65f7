package rank

import (
	"context"
	"fmt"
	"testing"

	"github.com/liuran001/MuzmoBot-Go/bot/muzmo"
	"github.com/liuran001/MuzmoBot-Go/bot/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioQuery = "Игорь Тальков я вернусь"

var scenarioNames = []string{
	"Игорь Тальков - Я вернусь",
	"Игорь Тальков - Чистые пруды",
	"Игорь Тальков - Летний дождь",
	"Игорь Тальков - Россия",
	"Игорь Тальков я вернусь - концерт",
	"Игорь Тальков - Господин президент",
	"Игорь Тальков - Глобус",
	"Игорь Тальков - Память",
}

func scenarioCandidates() []muzmo.Candidate {
	var out []muzmo.Candidate
	for page := 1; page <= 2; page++ {
		for i, name := range scenarioNames {
			out = append(out, muzmo.Candidate{
				DisplayName:   name,
				DurationLabel: fmt.Sprintf("03:%02d", 10+i),
				ItemID:        fmt.Sprintf("%d%02d", page, i),
			})
		}
	}
	return out
}

func newPool(t *testing.T) *worker.Pool {
	t.Helper()
	pool := worker.New(4)
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
	})
	return pool
}

func TestTopScenario(t *testing.T) {
	ranker := New(newPool(t), 4, nil)
	candidates := scenarioCandidates()
	require.Len(t, candidates, 16)

	top, err := ranker.Top(context.Background(), candidates, scenarioQuery, 10)
	require.NoError(t, err)
	require.Len(t, top, 10)

	assert.Equal(t, "104", top[0].ItemID)
	assert.Equal(t, "204", top[1].ItemID)
	for _, c := range top[2:] {
		assert.NotContains(t, c.DisplayName, "я вернусь -")
	}
	assert.Equal(t, "100", top[2].ItemID)
	assert.Equal(t, "200", top[3].ItemID)
}

func TestTopDeterministicAcrossPartitions(t *testing.T) {
	pool := newPool(t)
	candidates := scenarioCandidates()

	want, err := New(nil, 1, nil).Top(context.Background(), candidates, scenarioQuery, 10)
	require.NoError(t, err)

	for _, parts := range []int{1, 2, 3, 4, 5, 7, 16, 40} {
		for run := 0; run < 3; run++ {
			got, err := New(pool, parts, nil).Top(context.Background(), candidates, scenarioQuery, 10)
			require.NoError(t, err)
			assert.Equal(t, want, got, "partitions=%d run=%d", parts, run)
		}
	}
}

func TestTopReturnsSmallInputUnchanged(t *testing.T) {
	ranker := New(newPool(t), 4, nil)
	in := scenarioCandidates()[:6]

	got, err := ranker.Top(context.Background(), in, "совсем другое", 10)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	got, err = ranker.Top(context.Background(), in, "совсем другое", 6)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestTopTiesKeepExtractionOrder(t *testing.T) {
	in := make([]muzmo.Candidate, 0, 8)
	for i := 0; i < 8; i++ {
		in = append(in, muzmo.Candidate{DisplayName: "Кино - Звезда", DurationLabel: "04:00", ItemID: fmt.Sprint(i)})
	}

	got, err := New(newPool(t), 3, nil).Top(context.Background(), in, "кино", 5)
	require.NoError(t, err)
	for i, c := range got {
		assert.Equal(t, fmt.Sprint(i), c.ItemID)
	}
}

func TestTopCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newPool(t), 4, nil).Top(ctx, scenarioCandidates(), scenarioQuery, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScoreBonus(t *testing.T) {
	assert.Equal(t, float64(substringBonus), bonus("я вернусь", "игорь тальков - я вернусь"))
	assert.Equal(t, float64(tokenMatchBonus), bonus("тальков россия", "игорь тальков - память"))
	assert.Equal(t, float64(0), bonus("кино", "ария - беспечный ангел"))

	literal := Score(scenarioQuery, "Игорь Тальков я вернусь - концерт")
	near := Score(scenarioQuery, "Игорь Тальков - Я вернусь")
	unrelated := Score(scenarioQuery, "Ария - Беспечный ангел")
	assert.Greater(t, literal, near)
	assert.Greater(t, near, unrelated)
	assert.InDelta(t, 105.7, literal, 0.5)
}

func TestScoreIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, Score("КИНО звезда", "кино - ЗВЕЗДА"), Score("кино звезда", "Кино - Звезда"))
}

func TestPartition(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 12}, {12, 16}}, partition(16, 4))
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 9}, {9, 10}}, partition(10, 4))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, partition(2, 4))
	assert.Nil(t, partition(0, 4))
}
