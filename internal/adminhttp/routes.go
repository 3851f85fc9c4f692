package adminhttp

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/metrics"
	"github.com/coda-et/etransport/internal/station"
	"github.com/coda-et/etransport/internal/system"
)

// groupFairness reports a parallel group's member-input-length fairness
// (spec.md §8 S3 "fairness" observability), computed via
// metrics.FairnessStats over each member's current input-list length.
type groupFairness struct {
	HeadID         int     `json:"head_id"`
	HeadName       string  `json:"head_name"`
	MeanInputLen   float64 `json:"mean_input_length"`
	StdDevInputLen float64 `json:"stddev_input_length"`
}

func fairnessByGroup(sys *system.System) []groupFairness {
	var out []groupFairness
	for _, st := range sys.Stations() {
		if !st.IsGroupHead() {
			continue
		}
		grp := sys.GroupFor(st.ID)
		if grp == nil {
			continue
		}
		lengths := make([]int, len(grp.Members))
		for i, m := range grp.Members {
			lengths[i] = m.Input.Stats().Length
		}
		mean, stddev := metrics.FairnessStats(lengths)
		out = append(out, groupFairness{HeadID: st.ID, HeadName: st.Name, MeanInputLen: mean, StdDevInputLen: stddev})
	}
	return out
}

func registerRoutes(r *gin.Engine, sys *system.System, m *metrics.Metrics, log *logging.Logger) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/sys", sysDataHandler(sys, m))
	r.GET("/api/stations", stationsHandler(sys))
	r.GET("/api/stations/:id", stationHandler(sys))
	r.GET("/ws/livefeed", liveFeedHandler(sys, log))
}

// sysResponse is the JSON equivalent of SYS_DATA for operators (spec.md
// §6.1, SPEC_FULL.md supplement).
type sysResponse struct {
	system.Stats
	metrics.Snapshot
	Fairness []groupFairness `json:"fairness,omitempty"`
}

func sysDataHandler(sys *system.System, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := sysResponse{Stats: sys.Stats(), Fairness: fairnessByGroup(sys)}
		if m != nil {
			resp.Snapshot = m.Snapshot()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// stationSummary is a flattened, JSON-friendly view of one station.
type stationSummary struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Position         int    `json:"position"`
	ParallelPosition int    `json:"parallel_position"`
	Flow             string `json:"flow"`
	Select           string `json:"select"`
	InputLength      int    `json:"input_length"`
	OutputLength     int    `json:"output_length"`
	Attachments      int    `json:"attachments"`
}

func summarize(st *station.Station) stationSummary {
	flow := "serial"
	if st.Config.Flow == station.FlowParallel {
		flow = "parallel"
	}
	return stationSummary{
		ID:               st.ID,
		Name:             st.Name,
		Position:         st.Position,
		ParallelPosition: st.ParallelPosition,
		Flow:             flow,
		Select:           st.Config.Select.String(),
		InputLength:      st.Input.Stats().Length,
		OutputLength:     st.Output.Stats().Length,
		Attachments:      st.AttachmentCount(),
	}
}

func stationsHandler(sys *system.System) gin.HandlerFunc {
	return func(c *gin.Context) {
		stations := sys.Stations()
		out := make([]stationSummary, 0, len(stations))
		for _, st := range stations {
			out = append(out, summarize(st))
		}
		jsonOrZstd(c, gin.H{"stations": out})
	}
}

func stationHandler(sys *system.System) gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.Param("id")
		id, err := strconv.Atoi(idStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid station id"})
			return
		}
		st, ok := sys.StationByID(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "station not found"})
			return
		}
		c.JSON(http.StatusOK, summarize(st))
	}
}
