package loadgen

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

// Profile は負荷の形を表す
type Profile struct {
	Name        string
	Description string
	Clients     int      // 同時接続数
	Requests    int      // 1クライアントあたりのリクエスト数
	ReadRatio   float64  // get の比率（0.0〜1.0）
	Keys        []string // 対象キー
	ValueRange  int      // 値は value1..valueN から選ぶ

	// Fragments が空でなければ、各リクエストでこの中の1コマンドを分割送信する
	Fragments   [][]string
	FragmentGap time.Duration
}

// DefaultProfile は読み込み中心の通常負荷
func DefaultProfile() Profile {
	return Profile{
		Name:        "default",
		Description: "10 clients, 10000 requests each, 99% reads over six keys",
		Clients:     10,
		Requests:    10000,
		ReadRatio:   0.99,
		Keys:        []string{"key1", "key2", "key3", "key4", "key5", "key6"},
		ValueRange:  1000,
	}
}

// WriteHeavyProfile は書き込みの多い負荷。永続化の遅れを観察するのに使う
func WriteHeavyProfile() Profile {
	return Profile{
		Name:        "write-heavy",
		Description: "10 clients, 1000 requests each, 50% writes over six keys",
		Clients:     10,
		Requests:    1000,
		ReadRatio:   0.5,
		Keys:        []string{"key1", "key2", "key3", "key4", "key5", "key6"},
		ValueRange:  1000,
	}
}

// FragmentedProfile はコマンドを分割して送る
// サーバーは分割を連結しないので、断片ごとに応答が返る様子を確認できる
func FragmentedProfile() Profile {
	return Profile{
		Name:        "fragmented",
		Description: "4 clients sending commands split across several writes",
		Clients:     4,
		Requests:    1,
		Fragments: [][]string{
			{"get ", "key1\n"},
			{"set ", "key2=value", "123\n"},
			{"set ke", "y3=value", "456\n"},
			{"get ke", "y4\n"},
		},
		FragmentGap: 100 * time.Millisecond,
	}
}

var presets = map[string]func() Profile{
	"default":     DefaultProfile,
	"write-heavy": WriteHeavyProfile,
	"fragmented":  FragmentedProfile,
}

// GetProfile は名前からプロファイルを取得する
func GetProfile(name string) (Profile, bool) {
	if fn, ok := presets[name]; ok {
		return fn(), true
	}
	return Profile{}, false
}

// ListProfiles は利用可能なプロファイル名を返す
func ListProfiles() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate はプロファイルの値を検証する
func (p Profile) Validate() error {
	if p.Clients <= 0 {
		return fmt.Errorf("clients must be positive, got %d", p.Clients)
	}
	if p.Requests <= 0 {
		return fmt.Errorf("requests must be positive, got %d", p.Requests)
	}
	if len(p.Fragments) > 0 {
		return nil
	}
	if p.ReadRatio < 0 || p.ReadRatio > 1 {
		return fmt.Errorf("read ratio must be within [0, 1], got %v", p.ReadRatio)
	}
	if len(p.Keys) == 0 {
		return fmt.Errorf("profile %q has no keys", p.Name)
	}
	if p.ReadRatio < 1 && p.ValueRange <= 0 {
		return fmt.Errorf("value range must be positive, got %d", p.ValueRange)
	}
	return nil
}
