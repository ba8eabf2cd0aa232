package server

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robotnikz/sunflow/pkg/storage/storagemock"
	"github.com/robotnikz/sunflow/pkg/types"
)

func TestROIProjectsBreakEven(t *testing.T) {
	db := &storagemock.MockDatabase{}
	srv, clk := newTestServer(t, db)

	// zero rates keep the projection linear so the break-even date is exact
	cfg, err := srv.config.Get()
	require.NoError(t, err)
	zero := 0.0
	cfg.DegradationRate = &zero
	cfg.InflationRate = &zero
	require.NoError(t, srv.config.Save(cfg))

	db.On("GetExpenses", mock.Anything).Return([]types.Expense{
		{ID: 1, Name: "System", Amount: 1000, Type: types.ExpenseOneTime, Date: "2024-01-01"},
	}, nil)
	db.On("GetTariffs", mock.Anything).
		Return([]types.Tariff{{ValidFrom: "2020-01-01", CostKWH: 0.30, FeedInKWH: 0.08}}, nil)
	db.On("GetPowerSamples", mock.Anything, mock.Anything, mock.Anything).
		Return([]types.PowerSample{}, nil)

	// 24 archive hours ten days back, 1 kWh self-consumed each
	base := clk.Now().AddDate(0, 0, -10)
	summaries := make([]types.EnergySummary, 0, 24)
	for i := 0; i < 24; i++ {
		summaries = append(summaries, types.EnergySummary{
			TSHourStart: base.Add(time.Duration(i) * time.Hour),
			LoadWh:      1000,
		})
	}
	db.On("GetEnergySummaries", mock.Anything, mock.Anything, mock.Anything).Return(summaries, nil)

	w := doRequest(srv, "GET", "/api/roi", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var sum types.ROISummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))

	assert.Equal(t, 1000.0, sum.TotalInvested)
	assert.InDelta(t, 7.2, sum.TotalReturned, 1e-9)
	assert.InDelta(t, -992.8, sum.NetValue, 1e-9)
	assert.InDelta(t, 0.72, sum.ROIPercent, 1e-9)
	require.Len(t, sum.Expenses, 1)

	// window baseline: 24 kWh over ten days at 0.30/kWh clears the 992.80
	// debt in 992.8/0.72 days
	require.NotNil(t, sum.BreakEvenDate)
	wantDays := 992.8 / 0.72
	expected := clk.Now().Add(time.Duration(wantDays * 24 * float64(time.Hour)))
	assert.WithinDuration(t, expected, *sum.BreakEvenDate, time.Minute)
	assert.InDelta(t, 1000.0, sum.ProjectedBreakEvenCost, 1e-9)
}

func TestROIAlreadyProfitable(t *testing.T) {
	db := &storagemock.MockDatabase{}
	srv, _ := newTestServer(t, db)

	// pre-system return recorded in config exceeds the investment
	cfg, err := srv.config.Get()
	require.NoError(t, err)
	cfg.InitialValues.FinancialReturn = 500
	require.NoError(t, srv.config.Save(cfg))

	db.On("GetExpenses", mock.Anything).Return([]types.Expense{
		{ID: 1, Name: "Panels", Amount: 400, Type: types.ExpenseOneTime, Date: "2020-01-01"},
	}, nil)
	db.On("GetTariffs", mock.Anything).Return([]types.Tariff{}, nil)
	db.On("GetPowerSamples", mock.Anything, mock.Anything, mock.Anything).
		Return([]types.PowerSample{}, nil)
	db.On("GetEnergySummaries", mock.Anything, mock.Anything, mock.Anything).
		Return([]types.EnergySummary{}, nil)

	w := doRequest(srv, "GET", "/api/roi", "")
	require.Equal(t, http.StatusOK, w.Code)

	var sum types.ROISummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.InDelta(t, 100.0, sum.NetValue, 1e-9)
	assert.InDelta(t, 125.0, sum.ROIPercent, 1e-9)
	assert.Nil(t, sum.BreakEvenDate)
}
