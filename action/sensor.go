package action

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

const (
	staleAfter   = 10 * time.Minute
	offlineAfter = 60 * time.Minute
	// maxAreasInReport is how many areas a query without area or metric may
	// summarise before the user is asked to narrow it down.
	maxAreasInReport = 3
)

// summaryMetrics is the order readings are listed in an area summary.
var summaryMetrics = []string{"temperature", "humidity", "soilMoisture", "lightLevel"}

var metricLabels = map[string]string{
	"temperature":  "Nhiệt độ",
	"humidity":     "Độ ẩm không khí",
	"soilMoisture": "Độ ẩm đất",
	"lightLevel":   "Ánh sáng",
}

// SensorReport is the data behind a sensor answer.
type SensorReport struct {
	Area     string             `json:"area,omitempty"`
	Metric   string             `json:"metric,omitempty"`
	Values   map[string]float64 `json:"values,omitempty"`
	Age      time.Duration      `json:"age_ns,omitempty"`
	Stale    bool               `json:"stale,omitempty"`
	Offline  bool               `json:"offline,omitempty"`
	PerArea  map[string]float64 `json:"per_area,omitempty"`
	Reported int                `json:"reported,omitempty"`
}

// requestedMetric picks the metric of the longest matching phrase. A METRIC
// entity wins over scanning the raw query.
func (r *Router) requestedMetric(req Request) (metric, unit string) {
	if e, ok := req.Classification.FirstEntity(schema.EntityMetric); ok {
		for _, m := range r.lex.SensorMetrics {
			if m.Metric == e.Value {
				return m.Metric, m.Unit
			}
		}
	}
	// SensorMetrics is sorted longest phrase first.
	for _, m := range r.lex.SensorMetrics {
		if lexicon.ContainsWord(req.Query, m.Phrase) {
			return m.Metric, m.Unit
		}
	}
	return "", ""
}

func (r *Router) unitOf(metric string) string {
	for _, m := range r.lex.SensorMetrics {
		if m.Metric == metric {
			return m.Unit
		}
	}
	return ""
}

func handleSensor(ctx context.Context, r *Router, req Request) (Result, error) {
	if err := r.requireData(); err != nil {
		return Result{}, err
	}
	metric, unit := r.requestedMetric(req)
	areas, err := r.data.Areas(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if areaEnt, ok := req.Classification.FirstEntity(schema.EntityFarmArea); ok {
		return r.areaReport(ctx, areas, areaEnt.Value, metric, unit)
	}
	return r.generalReport(ctx, areas, metric, unit)
}

func (r *Router) areaReport(ctx context.Context, areas []Area, name, metric, unit string) (Result, error) {
	area, err := Resolve(name, areas, AreaName)
	switch {
	case errors.Is(err, ErrAmbiguous):
		return Result{Message: fmt.Sprintf("Có nhiều khu vực khớp với \"%s\". Vui lòng nêu chính xác tên khu vực.", name)}, nil
	case err != nil:
		return Result{Message: fmt.Sprintf("Tôi không tìm thấy khu vực \"%s\". Vui lòng kiểm tra lại tên khu vực.", name)}, nil
	}
	if area.ActiveSensors == 0 {
		return Result{Message: fmt.Sprintf("Khu vực \"%s\" hiện chưa có thiết bị cảm biến nào đang hoạt động.", area.Name)}, nil
	}
	reading, err := r.data.LatestReading(ctx, area.ID)
	if err != nil {
		return Result{}, err
	}
	if reading == nil || len(reading.Values) == 0 {
		return Result{Message: fmt.Sprintf("Hiện tại chưa có dữ liệu cảm biến từ khu vực \"%s\".", area.Name)}, nil
	}

	age := r.now().Sub(reading.RecordedAt)
	report := SensorReport{
		Area:    area.Name,
		Metric:  metric,
		Values:  reading.Values,
		Age:     age,
		Stale:   age > staleAfter,
		Offline: age > offlineAfter,
	}
	ago := timeAgo(age)

	if metric != "" {
		v, ok := reading.Values[metric]
		label := metricLabels[metric]
		if !ok {
			return Result{Message: fmt.Sprintf("Không có dữ liệu về %s tại khu vực \"%s\".", strings.ToLower(label), area.Name)}, nil
		}
		value := formatReading(v) + unit
		var msg string
		switch {
		case report.Offline:
			msg = fmt.Sprintf("⚠️ Thiết bị tại %s có thể đã offline. Dữ liệu cuối cùng (%s) cho thấy %s là %s. Vui lòng kiểm tra kết nối thiết bị.",
				area.Name, ago, strings.ToLower(label), value)
		case report.Stale:
			msg = fmt.Sprintf("%s tại %s là %s (cập nhật %s). Lưu ý: Dữ liệu có thể không còn chính xác.", label, area.Name, value, ago)
		default:
			msg = fmt.Sprintf("%s tại %s hiện tại là %s.", label, area.Name, value)
		}
		return Result{Success: true, Message: msg, Data: report}, nil
	}

	var parts []string
	for _, m := range summaryMetrics {
		if v, ok := reading.Values[m]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s%s", metricLabels[m], formatReading(v), r.unitOf(m)))
		}
	}
	if len(parts) == 0 {
		return Result{Message: fmt.Sprintf("Dữ liệu cảm biến tại khu vực \"%s\" không đầy đủ.", area.Name)}, nil
	}
	list := "- " + strings.Join(parts, "\n- ")
	var msg string
	switch {
	case report.Offline:
		msg = fmt.Sprintf("⚠️ Thiết bị tại %s có thể đã offline. Dữ liệu cuối cùng (%s):\n%s\n\nVui lòng kiểm tra kết nối thiết bị.", area.Name, ago, list)
	case report.Stale:
		msg = fmt.Sprintf("Thông số môi trường tại %s (cập nhật %s):\n%s\n\nLưu ý: Dữ liệu có thể không còn chính xác.", area.Name, ago, list)
	default:
		msg = fmt.Sprintf("Thông số môi trường tại %s:\n%s", area.Name, list)
	}
	return Result{Success: true, Message: msg, Data: report}, nil
}

func (r *Router) generalReport(ctx context.Context, areas []Area, metric, unit string) (Result, error) {
	var active []Area
	for _, a := range areas {
		if a.ActiveSensors > 0 {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return Result{Message: "Trang trại của bạn chưa có thiết bị cảm biến nào đang hoạt động."}, nil
	}
	if len(active) > maxAreasInReport && metric == "" {
		return Result{Message: fmt.Sprintf("Bạn có %d khu vực đang hoạt động. Vui lòng hỏi cụ thể khu vực nào để tôi báo cáo chi tiết hơn.", len(active))}, nil
	}

	report := SensorReport{Metric: metric, PerArea: map[string]float64{}}
	var lines []string
	for _, a := range active {
		reading, err := r.data.LatestReading(ctx, a.ID)
		if err != nil {
			return Result{}, err
		}
		if reading == nil {
			continue
		}
		if metric != "" {
			if v, ok := reading.Values[metric]; ok {
				report.PerArea[a.Name] = v
				lines = append(lines, fmt.Sprintf("- %s: %s%s", a.Name, formatReading(v), unit))
			}
			continue
		}
		t, okT := reading.Values["temperature"]
		h, okH := reading.Values["humidity"]
		if okT && okH {
			lines = append(lines, fmt.Sprintf("- %s: %s°C, %s%%", a.Name, formatReading(t), formatReading(h)))
		}
	}
	if len(lines) == 0 {
		return Result{Message: "Không tìm thấy dữ liệu cảm biến nào."}, nil
	}
	report.Reported = len(lines)
	label := "thông số"
	if metric != "" {
		label = strings.ToLower(metricLabels[metric])
	}
	return Result{Success: true, Message: fmt.Sprintf("Báo cáo %s hiện tại:\n%s", label, strings.Join(lines, "\n")), Data: report}, nil
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func timeAgo(d time.Duration) string {
	minutes := int(d / time.Minute)
	switch {
	case minutes < 60:
		return fmt.Sprintf("%d phút trước", minutes)
	case minutes < 1440:
		return fmt.Sprintf("%d giờ trước", minutes/60)
	default:
		return fmt.Sprintf("%d ngày trước", minutes/1440)
	}
}
