package action

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

const (
	msgNoFarm            = "Bạn chưa có nông trại nào. Hãy tạo nông trại đầu tiên."
	msgFinanceNeedPeriod = "Vui lòng truy cập trang tài chính của nông trại để biết thêm chi tiết!"
)

var vnd = message.NewPrinter(language.Vietnamese)

// formatVND renders amount as "1.500.000 ₫".
func formatVND(amount float64) string {
	return vnd.Sprintf("%d ₫", int64(math.Round(amount)))
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return vnd.Sprintf("%d", int64(v))
	}
	return vnd.Sprintf("%.1f", v)
}

func profitTag(profit float64) string {
	if profit >= 0 {
		return "(Lãi)"
	}
	return "(Lỗ)"
}

// FinancialSummary is the data behind a financial answer.
type FinancialSummary struct {
	Revenue float64 `json:"revenue"`
	Cost    float64 `json:"cost"`
	Profit  float64 `json:"profit"`
	Period  Period  `json:"period"`
}

func handleFinancial(ctx context.Context, r *Router, req Request) (Result, error) {
	if err := r.requireData(); err != nil {
		return Result{}, err
	}
	period, ok := periodFromEntities(req.Classification.EntitiesOf(schema.EntityDate), r.now())
	if !ok {
		return Result{Message: msgFinanceNeedPeriod}, nil
	}
	farms, err := r.data.Farms(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if len(farms) == 0 {
		return Result{Message: msgNoFarm}, nil
	}
	acts, err := r.data.Activities(ctx, req.UserID, period.Start, period.End)
	if err != nil {
		return Result{}, err
	}

	sum := FinancialSummary{Period: period}
	if len(acts) == 0 {
		return Result{
			Success: true,
			Message: fmt.Sprintf("Chưa có hoạt động nào được ghi nhận trong khoảng thời gian %s.", period),
			Data:    sum,
		}, nil
	}
	for _, a := range acts {
		sum.Revenue += a.Revenue
		sum.Cost += a.Cost
	}
	sum.Profit = sum.Revenue - sum.Cost
	return Result{Success: true, Message: financialMessage(req.Query, sum), Data: sum}, nil
}

func financialMessage(query string, s FinancialSummary) string {
	label := s.Period.Label
	switch {
	case lexicon.ContainsWord(query, "doanh thu"):
		return fmt.Sprintf("Tổng doanh thu %s là %s.", label, formatVND(s.Revenue))
	case lexicon.ContainsAny(query, []string{"chi phí", "chi tiêu"}):
		return fmt.Sprintf("Tổng chi phí %s là %s.", label, formatVND(s.Cost))
	case lexicon.ContainsAny(query, []string{"lợi nhuận", "lãi"}):
		breakdown := fmt.Sprintf("(Doanh thu: %s - Chi phí: %s)", formatVND(s.Revenue), formatVND(s.Cost))
		if s.Profit >= 0 {
			return fmt.Sprintf("Lợi nhuận %s là %s %s.", label, formatVND(s.Profit), breakdown)
		}
		return fmt.Sprintf("%s đang lỗ %s %s.", capitalize(label), formatVND(-s.Profit), breakdown)
	}
	return fmt.Sprintf("Báo cáo tài chính %s:\n- Doanh thu: %s\n- Chi phí: %s\n- Lợi nhuận: %s",
		label, formatVND(s.Revenue), formatVND(s.Cost), formatVND(s.Profit))
}

func capitalize(s string) string {
	rs := []rune(s)
	if len(rs) == 0 {
		return s
	}
	return strings.ToUpper(string(rs[:1])) + string(rs[1:])
}

// CropSummary aggregates a user's plantings.
type CropSummary struct {
	TotalCrops int            `json:"total_crops"`
	TotalArea  float64        `json:"total_area"`
	TotalYield float64        `json:"total_yield"`
	CropTypes  map[string]int `json:"crop_types"`
}

func handleCrop(ctx context.Context, r *Router, req Request) (Result, error) {
	if err := r.requireData(); err != nil {
		return Result{}, err
	}
	farms, err := r.data.Farms(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if len(farms) == 0 {
		return Result{Success: true, Message: "Bạn chưa có nông trại nào. Hãy tạo nông trại đầu tiên để quản lý cây trồng."}, nil
	}
	crops, err := r.data.Crops(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if crop, ok := req.Classification.FirstEntity(schema.EntityCropName); ok {
		crops = filterCrops(crops, crop.Value)
	}

	s := CropSummary{TotalCrops: len(crops), CropTypes: map[string]int{}}
	for _, c := range crops {
		s.TotalArea += c.PlantedArea
		s.TotalYield += c.ActualYield
		s.CropTypes[c.Type]++
	}

	var b strings.Builder
	b.WriteString("**Thống kê cây trồng:**\n")
	fmt.Fprintf(&b, "• Tổng số cây: %d cây\n", s.TotalCrops)
	fmt.Fprintf(&b, "• Tổng diện tích: %s m²\n", formatNumber(s.TotalArea))
	fmt.Fprintf(&b, "• Tổng sản lượng: %s kg", formatNumber(s.TotalYield))
	if top := topCounts(s.CropTypes, 3); len(top) > 0 {
		b.WriteString("\n\n**Top cây trồng:**")
		for _, kv := range top {
			fmt.Fprintf(&b, "\n• %s: %d cây", kv.key, kv.n)
		}
	}
	return Result{Success: true, Message: b.String(), Data: s}, nil
}

func filterCrops(crops []Crop, name string) []Crop {
	var out []Crop
	for _, c := range crops {
		if lexicon.ContainsWord(c.Name, name) || lexicon.ContainsWord(c.Type, name) {
			out = append(out, c)
		}
	}
	return out
}

type count struct {
	key string
	n   int
}

func topCounts(m map[string]int, k int) []count {
	out := make([]count, 0, len(m))
	for key, n := range m {
		out = append(out, count{key, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].key < out[j].key
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// ActivitySummary aggregates a user's farm operations.
type ActivitySummary struct {
	Total          int            `json:"total"`
	Completed      int            `json:"completed"`
	InProgress     int            `json:"in_progress"`
	CompletionRate float64        `json:"completion_rate"`
	Types          map[string]int `json:"types"`
}

func handleActivity(ctx context.Context, r *Router, req Request) (Result, error) {
	if err := r.requireData(); err != nil {
		return Result{}, err
	}
	farms, err := r.data.Farms(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if len(farms) == 0 {
		return Result{Success: true, Message: "Bạn chưa có nông trại nào. Hãy tạo nông trại đầu tiên để quản lý hoạt động."}, nil
	}
	period, hasPeriod := periodFromEntities(req.Classification.EntitiesOf(schema.EntityDate), r.now())
	acts, err := r.data.Activities(ctx, req.UserID, period.Start, period.End)
	if err != nil {
		return Result{}, err
	}

	s := ActivitySummary{Total: len(acts), Types: map[string]int{}}
	for _, a := range acts {
		switch a.Status {
		case StatusCompleted:
			s.Completed++
		case StatusInProgress:
			s.InProgress++
		}
		s.Types[a.Type]++
	}
	if s.Total > 0 {
		s.CompletionRate = float64(s.Completed) / float64(s.Total) * 100
	}

	title := "**Thống kê hoạt động:**"
	if hasPeriod {
		title = fmt.Sprintf("**Thống kê hoạt động %s:**", period.Label)
	}
	msg := fmt.Sprintf("%s\n• Tổng hoạt động: %d\n• Đã hoàn thành: %d\n• Đang thực hiện: %d\n• Tỷ lệ hoàn thành: %.1f%%",
		title, s.Total, s.Completed, s.InProgress, s.CompletionRate)
	return Result{Success: true, Message: msg, Data: s}, nil
}

// Overview is the whole-account analytics snapshot.
type Overview struct {
	Farms      int     `json:"farms"`
	Crops      int     `json:"crops"`
	Activities int     `json:"activities"`
	Revenue    float64 `json:"revenue"`
	Expenses   float64 `json:"expenses"`
	Profit     float64 `json:"profit"`
}

func handleAnalytics(ctx context.Context, r *Router, req Request) (Result, error) {
	if err := r.requireData(); err != nil {
		return Result{}, err
	}
	farms, err := r.data.Farms(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if len(farms) == 0 {
		return Result{Success: true, Message: "Bạn chưa có nông trại nào. Hãy tạo nông trại đầu tiên để xem thống kê."}, nil
	}
	crops, err := r.data.Crops(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	acts, err := r.data.Activities(ctx, req.UserID, time.Time{}, time.Time{})
	if err != nil {
		return Result{}, err
	}

	o := Overview{Farms: len(farms), Crops: len(crops), Activities: len(acts)}
	for _, a := range acts {
		o.Expenses += a.Cost
	}
	for _, c := range crops {
		o.Revenue += c.ActualYield * c.MarketPrice
	}
	o.Profit = o.Revenue - o.Expenses

	msg := fmt.Sprintf("**Tổng quan hệ thống:**\n• Số nông trại: %d\n• Số cây trồng: %d\n• Số hoạt động: %d\n• Tổng doanh thu: %s\n• Tổng chi phí: %s\n• Lợi nhuận: %s %s",
		o.Farms, o.Crops, o.Activities, formatVND(o.Revenue), formatVND(o.Expenses), formatVND(o.Profit), profitTag(o.Profit))
	return Result{Success: true, Message: msg, Data: o}, nil
}

func handleFarm(ctx context.Context, r *Router, req Request) (Result, error) {
	if err := r.requireData(); err != nil {
		return Result{}, err
	}
	farms, err := r.data.Farms(ctx, req.UserID)
	if err != nil {
		return Result{}, err
	}
	if len(farms) == 0 {
		return Result{Success: true, Message: msgNoFarm}, nil
	}
	if len(farms) == 1 {
		f := farms[0]
		area, location := "Chưa xác định", "Chưa xác định"
		if f.AreaM2 > 0 {
			area = formatNumber(f.AreaM2)
		}
		if f.Location != "" {
			location = f.Location
		}
		msg := fmt.Sprintf("**Nông trại của bạn:**\n• Tên: %s\n• Loại: %s\n• Diện tích: %s m²\n• Địa điểm: %s",
			f.Name, f.Type, area, location)
		return Result{Success: true, Message: msg, Data: farms}, nil
	}
	lines := make([]string, len(farms))
	for i, f := range farms {
		lines[i] = fmt.Sprintf("• %s (%s)", f.Name, f.Type)
	}
	msg := fmt.Sprintf("**Danh sách nông trại (%d):**\n%s", len(farms), strings.Join(lines, "\n"))
	return Result{Success: true, Message: msg, Data: farms}, nil
}

const recordHint = "vui lòng sử dụng giao diện quản lý nông trại hoặc cung cấp thông tin chi tiết hơn."

// Mutations are not executed from chat; the user is pointed at the farm UI
// and the response asks for confirmation.
func handleCreateRecord(_ context.Context, _ *Router, _ Request) (Result, error) {
	return Result{Success: true, Message: "Để tạo bản ghi mới, " + recordHint, RequiresConfirmation: true}, nil
}

func handleUpdateRecord(_ context.Context, _ *Router, _ Request) (Result, error) {
	return Result{Success: true, Message: "Để cập nhật bản ghi, " + recordHint, RequiresConfirmation: true}, nil
}

func handleDeleteRecord(_ context.Context, _ *Router, _ Request) (Result, error) {
	return Result{Success: true, Message: "Để xóa bản ghi, " + recordHint, RequiresConfirmation: true}, nil
}
