package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/cors"

	"syncarena/config"
	"syncarena/logging"
)

// Admin 管理与监控接口
type Admin struct {
	room *Room
	cfg  config.Config
}

func NewAdmin(room *Room, cfg config.Config) *Admin {
	return &Admin{room: room, cfg: cfg}
}

type adminConfig struct {
	BroadcastIntervalMs  *int     `json:"broadcastIntervalMs,omitempty"`
	InterpolationDelayMs *int     `json:"interpolationDelayMs,omitempty"`
	AxisMin              *float64 `json:"axisMin,omitempty"`
	AxisMax              *float64 `json:"axisMax,omitempty"`
	MaxInputDt           *float64 `json:"maxInputDt,omitempty"`
	Speed                *float64 `json:"speed,omitempty"`
	AckRejectedInputs    *bool    `json:"ackRejectedInputs,omitempty"`
}

// HandleConfig 读取当前配置；POST 仅允许热更新广播周期。
// 校验规则不可热更新：客户端预测与服务端权威必须使用同一套规则。
// GET /admin/config
// POST /admin/config {"broadcastIntervalMs": 50}
func (a *Admin) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		interval := int(a.room.BroadcastInterval() / time.Millisecond)
		cur := adminConfig{
			BroadcastIntervalMs:  &interval,
			InterpolationDelayMs: &a.cfg.InterpolationDelayMs,
			AxisMin:              &a.cfg.AxisMin,
			AxisMax:              &a.cfg.AxisMax,
			MaxInputDt:           &a.cfg.MaxInputDt,
			Speed:                &a.cfg.Speed,
			AckRejectedInputs:    &a.cfg.AckRejectedInputs,
		}
		writeJSON(w, http.StatusOK, cur)
	case http.MethodPost:
		var body adminConfig
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.BroadcastIntervalMs == nil {
			http.Error(w, "broadcastIntervalMs required", http.StatusBadRequest)
			return
		}
		if body.AxisMin != nil || body.AxisMax != nil || body.MaxInputDt != nil || body.Speed != nil ||
			body.InterpolationDelayMs != nil || body.AckRejectedInputs != nil {
			http.Error(w, "only broadcastIntervalMs can be changed at runtime", http.StatusBadRequest)
			return
		}
		d := time.Duration(*body.BroadcastIntervalMs) * time.Millisecond
		if d <= 0 || d > a.cfg.InterpolationDelay() {
			http.Error(w, "broadcastIntervalMs must be positive and not above the interpolation delay", http.StatusBadRequest)
			return
		}
		if err := a.room.SetBroadcastInterval(d); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		logging.Log.Infof("config updated: broadcastIntervalMs=%d", *body.BroadcastIntervalMs)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出运行指标与当前名册大小
// GET /metrics
func (a *Admin) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	var entities int
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := a.room.Do(ctx, func(world *World) { entities = world.Len() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"metrics":  a.room.Metrics().Snapshot(),
	})
}

// Routes 注册全部 HTTP 路由，外层包一层 CORS
func (a *Admin) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.room.HandleWS)
	mux.HandleFunc("/admin/config", a.HandleConfig)
	mux.HandleFunc("/metrics", a.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}).Handler(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
