package action

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/lexicon"
	"github.com/agrisense/agriquery/schema"
)

const (
	msgDeviceUnresolved = "Không xác định được thiết bị hoặc khu vực cần điều khiển."
	msgUseDashboard     = "Vui lòng sử dụng Bảng điều khiển tại Farm Dashboard để thao tác chính xác hơn."
	msgAutoConfig       = "Vui lòng sử dụng Farm Dashboard để thay đổi các thông số tưới tự động (ngưỡng ẩm, thời gian tưới...)."
)

var (
	autoModeWords = []string{"tự động", "auto", "lịch", "hẹn giờ"}
	configWords   = []string{"cài đặt", "thiết lập", "chỉnh", "ngưỡng"}
)

// DeviceOutcome is the data behind a device control answer.
type DeviceOutcome struct {
	DeviceType DeviceType    `json:"device_type"`
	Area       string        `json:"area"`
	Action     string        `json:"action"`
	Duration   time.Duration `json:"duration,omitempty"`
	AutoMode   bool          `json:"auto_mode,omitempty"`
	CommandID  string        `json:"command_id,omitempty"`
}

func handleDevice(ctx context.Context, r *Router, req Request) (Result, error) {
	cls := req.Classification
	deviceEnt, hasDevice := cls.FirstEntity(schema.EntityDeviceName)
	areaEnt, hasArea := cls.FirstEntity(schema.EntityFarmArea)
	if !hasDevice || !hasArea {
		return Result{Message: msgDeviceUnresolved}, nil
	}
	if r.devices == nil {
		return Result{Message: msgUseDashboard}, nil
	}

	typ := DeviceType(r.lex.DeviceType(deviceEnt.Value))
	if typ == "" {
		typ = DeviceType(r.lex.DeviceType(req.Query))
	}
	if typ == "" {
		return Result{Message: msgUseDashboard}, nil
	}
	act := r.detectAction(req.Query)
	if act == "" {
		return Result{Message: msgUseDashboard}, nil
	}

	area, err := r.devices.ResolveArea(ctx, areaEnt.Value, req.UserID)
	if err != nil {
		if errors.Is(err, ErrNotResolved) || errors.Is(err, ErrAmbiguous) {
			logger.Debugf("action: area %q not resolved: %v", areaEnt.Value, err)
			return Result{Message: fmt.Sprintf("Không tìm thấy khu vực \"%s\" hoặc bạn không có quyền truy cập. Vui lòng sử dụng Bảng điều khiển tại Farm Dashboard để thao tác.", areaEnt.Value)}, nil
		}
		return Result{}, err
	}
	dev, err := r.devices.ResolveDevice(ctx, typ, area.Name, req.UserID)
	if err != nil {
		if errors.Is(err, ErrNotResolved) || errors.Is(err, ErrAmbiguous) {
			return Result{Message: fmt.Sprintf("Không tìm thấy %s trong khu vực \"%s\" hoặc bạn không có quyền điều khiển. Vui lòng sử dụng Bảng điều khiển tại Farm Dashboard để thao tác.", deviceNameVI(typ), area.Name)}, nil
		}
		return Result{}, err
	}

	cmd := Command{Action: act}
	auto := typ == DevicePump && lexicon.ContainsAny(req.Query, autoModeWords)
	if auto {
		if lexicon.ContainsAny(req.Query, configWords) {
			return Result{Message: msgAutoConfig}, nil
		}
		cmd.AutoMode = true
	} else if typ == DevicePump && act == "on" {
		cmd.Duration = ParseDuration(req.Query)
	}

	res, err := r.devices.SendCommand(ctx, dev, cmd)
	if err != nil {
		return Result{}, err
	}
	if !res.Accepted {
		reason := res.Message
		if reason == "" {
			reason = "Không thể thực thi lệnh"
		}
		return Result{Message: "⚠️ Thiết bị báo lỗi: " + reason}, nil
	}

	out := DeviceOutcome{
		DeviceType: typ,
		Area:       area.Name,
		Action:     act,
		Duration:   cmd.Duration,
		AutoMode:   cmd.AutoMode,
		CommandID:  res.CommandID,
	}
	return Result{Success: true, Message: confirmation(out), Data: out}, nil
}

// detectAction returns "on", "off" or "". On verbs are checked first.
func (r *Router) detectAction(query string) string {
	switch {
	case lexicon.ContainsAny(query, r.lex.ActionVerbs.On):
		return "on"
	case lexicon.ContainsAny(query, r.lex.ActionVerbs.Off):
		return "off"
	}
	return ""
}

func deviceNameVI(t DeviceType) string {
	if t == DevicePump {
		return "máy bơm"
	}
	return "đèn"
}

func confirmation(o DeviceOutcome) string {
	verb := "bật"
	if o.Action == "off" {
		verb = "tắt"
	}
	if o.AutoMode {
		return fmt.Sprintf("Đã %s chế độ tưới tự động cho %s", verb, o.Area)
	}
	if o.DeviceType == DeviceLight {
		return fmt.Sprintf("Đã %s đèn %s", verb, o.Area)
	}
	if o.Action == "on" && o.Duration > 0 {
		return fmt.Sprintf("Đã bật tưới %s trong %s. Bạn có thể theo dõi lịch sử tưới tiêu trong trang điều khiển !", o.Area, FormatDuration(o.Duration))
	}
	return fmt.Sprintf("Đã %s tưới %s", verb, o.Area)
}

var durationPatterns = []struct {
	re   *regexp.Regexp
	unit time.Duration
}{
	{regexp.MustCompile(`(?:^|\s)(\d+)\s*s(?:\s|$)`), time.Second},
	{regexp.MustCompile(`(?:^|\s)(\d+)\s*m(?:\s|$)`), time.Minute},
	{regexp.MustCompile(`(?:^|\s)(\d+)\s*h(?:\s|$)`), time.Hour},
	{regexp.MustCompile(`(\d+)\s*giây`), time.Second},
	{regexp.MustCompile(`(\d+)\s*phút`), time.Minute},
	{regexp.MustCompile(`(\d+)\s*(?:giờ|tiếng)`), time.Hour},
}

var hourAndHalf = regexp.MustCompile(`(\d+)\s*(?:tiếng|giờ)\s*rưỡi`)

// ParseDuration finds a watering duration in text: "5s", "10 phút",
// "1 giờ", "nửa tiếng", "2 tiếng rưỡi". Zero means none was found.
func ParseDuration(text string) time.Duration {
	s := lexicon.Normalize(text)
	if m := hourAndHalf.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return time.Duration(n)*time.Hour + 30*time.Minute
	}
	if strings.Contains(s, "nửa tiếng") || strings.Contains(s, "nửa giờ") {
		return 30 * time.Minute
	}
	for _, p := range durationPatterns {
		if m := p.re.FindStringSubmatch(s); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				return time.Duration(n) * p.unit
			}
		}
	}
	return 0
}

// FormatDuration renders d in Vietnamese: "45 giây", "10 phút", "2 giờ",
// "1 giờ 30 phút", "1 phút 30 giây".
func FormatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%d giây", secs)
	}
	mins := secs / 60
	if secs%60 != 0 {
		return fmt.Sprintf("%d phút %d giây", mins, secs%60)
	}
	if mins < 60 {
		return fmt.Sprintf("%d phút", mins)
	}
	if mins%60 == 0 {
		return fmt.Sprintf("%d giờ", mins/60)
	}
	return fmt.Sprintf("%d giờ %d phút", mins/60, mins%60)
}
