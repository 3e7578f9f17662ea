package ical

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/hitoshi/staysync/internal/model"
)

// Sanitizer はフィード由来テキストのサニタイズのインターフェース。
// テスタビリティのためsecurity.SummarySanitizerServiceを抽象化する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// ParseResult はパース結果。正常イベントに加え、個別にスキップした
// 不正イベントの件数を保持する。
type ParseResult struct {
	Events  []model.ParsedEvent
	Skipped int
}

// Parser はiCalendarフィード本文を正規化済みイベント列に変換する。
//
// 照合が成立するための要件:
//   - UIDが欠落したイベントには (source, check_in, check_out, summary) から
//     導出される決定的なフォールバックIDを割り当てる。同一フィードを
//     再パースすれば必ず同一のIDが得られる。
//   - 同一フィード内のUID重複は後勝ち（上流フィードは修正版の重複を
//     文書の後方に出力することがある）。
//   - 終了日が開始日以前のイベントは個別にスキップし、件数のみ計上する。
//   - 日時は暦日（チェックイン/チェックアウト日）に正規化し、時刻情報と
//     タイムゾーンを破棄する。予約は日付範囲であり時刻範囲ではない。
type Parser struct {
	sanitizer Sanitizer
}

// NewParser はParserの新しいインスタンスを生成する。
func NewParser(sanitizer Sanitizer) *Parser {
	return &Parser{sanitizer: sanitizer}
}

// dateLayouts はDTSTART/DTENDの値として現れる日付形式。
// 上流フィード（Airbnb、VRBO等）はVALUE=DATE形式が主だが、
// UTC日時やローカル日時を出力する実装も存在する。
var dateLayouts = []string{
	"20060102",             // VALUE=DATE
	"20060102T150405Z",     // UTC日時
	"20060102T150405",      // ローカル日時
	"2006-01-02",           // 非標準（ダッシュ区切り）
	"2006-01-02T15:04:05Z", // 非標準（ISO 8601）
}

// Parse はフィード本文をパースし、正規化済みイベント列を返す。
// フィード全体が不正な場合のみ*model.ParseErrorを返す。
// イベントが0件のフィードは正常（予約なし）として扱う。
func (p *Parser) Parse(sourceID string, body []byte) (*ParseResult, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, &model.ParseError{Err: err}
	}

	result := &ParseResult{}

	// UID重複の後勝ちを実現するため、UID → Eventsインデックスを保持する
	indexByUID := make(map[string]int)

	for _, ve := range cal.Events() {
		event, ok := p.parseEvent(sourceID, ve)
		if !ok {
			result.Skipped++
			continue
		}

		if i, exists := indexByUID[event.UID]; exists {
			result.Events[i] = event
			continue
		}
		indexByUID[event.UID] = len(result.Events)
		result.Events = append(result.Events, event)
	}

	return result, nil
}

// parseEvent は1つのVEVENTを正規化する。日付範囲が不正な場合はokにfalseを返す。
func (p *Parser) parseEvent(sourceID string, ve *ics.VEvent) (model.ParsedEvent, bool) {
	var event model.ParsedEvent

	if prop := ve.GetProperty(ics.ComponentPropertySummary); prop != nil {
		event.Summary = p.sanitizer.Sanitize(prop.Value)
	}
	if prop := ve.GetProperty(ics.ComponentPropertyDescription); prop != nil {
		event.Description = p.sanitizer.Sanitize(prop.Value)
	}

	checkIn, ok := propertyDate(ve, ics.ComponentPropertyDtStart)
	if !ok {
		return event, false
	}
	checkOut, ok := propertyDate(ve, ics.ComponentPropertyDtEnd)
	if !ok {
		return event, false
	}

	// チェックアウトがチェックイン以前のイベントは不正として個別スキップ
	if !checkOut.After(checkIn) {
		return event, false
	}

	event.CheckIn = checkIn
	event.CheckOut = checkOut

	if prop := ve.GetProperty(ics.ComponentPropertyUniqueId); prop != nil {
		event.UID = prop.Value
	}
	if event.UID == "" {
		event.UID = fallbackUID(sourceID, event.CheckIn, event.CheckOut, event.Summary)
	}

	return event, true
}

// propertyDate は日付系プロパティを暦日（UTC 00:00）に正規化して返す。
// プロパティが存在しない、またはどの形式でもパースできない場合はfalseを返す。
func propertyDate(ve *ics.VEvent, name ics.ComponentProperty) (time.Time, bool) {
	prop := ve.GetProperty(name)
	if prop == nil || prop.Value == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, prop.Value)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// fallbackUID はUIDを持たないイベントの決定的な識別子を導出する。
// ソースIDをハッシュ入力に含めることで、異なるソース間での衝突を防ぐ。
func fallbackUID(sourceID string, checkIn, checkOut time.Time, summary string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		sourceID,
		checkIn.Format("2006-01-02"),
		checkOut.Format("2006-01-02"),
		summary,
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
