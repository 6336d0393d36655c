// Command generate writes deterministic sample bookmaker payloads and click
// events for the seeded campaigns, for local runs against a stub server.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/betenlace/affiliates/internal/bookmaker"
	"github.com/betenlace/affiliates/internal/domain"
)

// Prom codes and link ids match testdata/seed.json.
var (
	betplayCodes = []string{"BP-ANA", "BP-LUIS"}
	linkIDs      = map[string]string{
		"BP-ANA":  "7d3e9a40-1f2b-4b6d-8c77-2e4a5b6c0b01",
		"BP-LUIS": "7d3e9a40-1f2b-4b6d-8c77-2e4a5b6c0b02",
		"CD-ANA":  "7d3e9a40-1f2b-4b6d-8c77-2e4a5b6c0b03",
		"YJ-ANA":  "7d3e9a40-1f2b-4b6d-8c77-2e4a5b6c0b05",
	}
)

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := filepath.Join(findTestdataDir(), "feeds")
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		panic(err)
	}

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	generateBetplayCSV(rng, day, baseDir)
	generateCodereJSON(rng, day, baseDir)
	generateYajuegoCSV(rng, day, baseDir)
	generateClickEvents(rng, day, baseDir)
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", math.Round(v*100)/100)
}

func generateBetplayCSV(rng *rand.Rand, day time.Time, baseDir string) {
	filePath := filepath.Join(baseDir, "betplay_"+day.Format("2006-01-02")+".csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{
		"Fecha", "Codigo Promocional", "Jugador", "Depositos", "Apuestas",
		"Ingresos Netos", "Revenue Share", "Fecha Registro", "Fecha Primer Deposito",
	})

	count := 0
	for _, code := range betplayCodes {
		players := 8 + rng.Intn(8)
		for i := 1; i <= players; i++ {
			deposit := 5 + rng.Float64()*195
			stake := deposit * (1 + rng.Float64()*4)
			net := stake * (rng.Float64()*0.2 - 0.05)
			rs := net * 0.35

			registered := day.AddDate(0, 0, -rng.Intn(40))
			firstDeposit := ""
			// 30% of players deposit for the first time on the run day.
			if rng.Float64() < 0.3 {
				firstDeposit = day.Format("2006-01-02")
			}

			w.Write([]string{
				day.Format("2006-01-02"),
				code,
				fmt.Sprintf("%s-%04d", code, i),
				money(deposit),
				money(stake),
				money(net),
				money(rs),
				registered.Format("2006-01-02"),
				firstDeposit,
			})
			count++
		}
	}

	// Activity without a punter and a code that is not in the seed.
	w.Write([]string{day.Format("2006-01-02"), "BP-ANA", bookmaker.NotRegistered, "0", "12.50", "1.10", "0.39", "", ""})
	w.Write([]string{day.Format("2006-01-02"), "BP-GHOST", "BP-GHOST-0001", "50", "80", "9", "3.15", day.Format("2006-01-02"), ""})
	count += 2

	fmt.Printf("Generated %d betplay CSV records -> %s\n", count, filepath.Base(filePath))
}

func generateCodereJSON(rng *rand.Rand, day time.Time, baseDir string) {
	type record struct {
		Date          string  `json:"date"`
		TrackingCode  string  `json:"tracking_code"`
		Deposits      float64 `json:"deposits"`
		Turnover      float64 `json:"turnover"`
		NetRevenue    float64 `json:"net_revenue"`
		RevenueShare  float64 `json:"revenue_share"`
		Registrations int     `json:"registrations"`
		FTD           int     `json:"ftd"`
		CPA           int     `json:"cpa"`
		ActivePlayers int     `json:"active_players"`
		Currency      string  `json:"currency"`
	}

	deposits := math.Round((2000+rng.Float64()*6000)*100) / 100
	turnover := math.Round(deposits*3.2*100) / 100
	net := math.Round(turnover*0.07*100) / 100
	ftd := 3 + rng.Intn(6)
	data := []record{{
		Date:          day.Format("2006-01-02"),
		TrackingCode:  "CD-ANA",
		Deposits:      deposits,
		Turnover:      turnover,
		NetRevenue:    net,
		RevenueShare:  math.Round(net*0.3*100) / 100,
		Registrations: ftd + rng.Intn(10),
		FTD:           ftd,
		CPA:           ftd - rng.Intn(2),
		ActivePlayers: 10 + rng.Intn(30),
		Currency:      "MXN",
	}}

	name := "codere_" + day.Format("2006-01-02") + ".json"
	writeJSONFile(filepath.Join(baseDir, name), map[string]any{"data": data})
	fmt.Printf("Generated %d codere JSON records -> %s\n", len(data), name)
}

func generateYajuegoCSV(rng *rand.Rand, day time.Time, baseDir string) {
	filePath := filepath.Join(baseDir, "yajuego_"+day.Format("2006-01-02")+".csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"Date", "Tracker", "Deposits", "Stakes", "NGR", "Commission", "Signups", "FTDs", "Wagering Players"})

	deposits := 1_000_000 + rng.Float64()*4_000_000
	ngr := deposits * 0.12
	w.Write([]string{
		day.Format("2006-01-02"),
		"YJ-ANA",
		money(deposits),
		money(deposits * 2.5),
		money(ngr),
		money(ngr * 0.4),
		fmt.Sprint(5 + rng.Intn(10)),
		fmt.Sprint(2 + rng.Intn(5)),
		fmt.Sprint(20 + rng.Intn(40)),
	})

	fmt.Printf("Generated 1 yajuego CSV record -> %s\n", filepath.Base(filePath))
}

func generateClickEvents(rng *rand.Rand, day time.Time, baseDir string) {
	var events []domain.ClickEvent
	for _, code := range []string{"BP-ANA", "BP-LUIS", "CD-ANA", "YJ-ANA"} {
		n := 20 + rng.Intn(80)
		for i := 0; i < n; i++ {
			at := day.Add(time.Duration(rng.Intn(24*60)) * time.Minute)
			events = append(events, domain.ClickEvent{
				ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", code, i))).String(),
				LinkID:    linkIDs[code],
				CreatedAt: at,
				Count:     1,
			})
		}
	}

	writeJSONFile(filepath.Join(baseDir, "click_events.json"), events)
	fmt.Printf("Generated %d click events -> click_events.json\n", len(events))
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	candidates := []string{
		"testdata",
		"./testdata",
		"../testdata",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	// Fallback.
	return "testdata"
}
