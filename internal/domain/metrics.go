package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Metric keys shared by normalizer and fusion.
const (
	MetricShortages           = "shortages"
	MetricSurplus             = "surplus"
	MetricTotalAvailableStock = "totalAvailableStock"
	MetricCurrentStock        = "currentStock"

	MetricTotalPendingOrders     = "totalPendingOrders"
	MetricTotalOrderValue        = "totalOrderValue"
	MetricRevenueAtRisk          = "revenueAtRisk"
	MetricMarginAtRisk           = "marginAtRisk"
	MetricAverageOrderSize       = "averageOrderSize"
	MetricOrdersWithLineItems    = "ordersWithLineItems"
	MetricUniqueProducts         = "uniqueProducts"
	MetricHighDemandProducts     = "highDemandProducts"
	MetricDemandTrend            = "demandTrend"
	MetricSurgeDetected          = "surgeDetected"
	MetricOverallSurgePercentage = "overallSurgePercentage"

	MetricOrdersWithRoutes    = "ordersWithRoutes"
	MetricOrdersNeedingRoutes = "ordersNeedingRoutes"
	MetricMaxDailyCapacity    = "maxDailyCapacity"
	MetricCapacityUtilization = "capacityUtilization"
	MetricCanFulfillAll       = "canFulfillAll"

	MetricOverallRiskScore = "overallRiskScore"
	MetricRiskLevel        = "riskLevel"
	MetricRiskCategories   = "riskCategories"
	MetricExposureSummary  = "exposureSummary"
)

// ShortageLine is one SKU quantity triple reported by the inventory specialist.
type ShortageLine struct {
	ProductID string `json:"productId"`
	Required  *int   `json:"required,omitempty"`
	Available *int   `json:"available,omitempty"`
	Shortage  int    `json:"shortage,omitempty"`
	Surplus   int    `json:"surplus,omitempty"`
}

type DemandProduct struct {
	ProductID       string `json:"productId"`
	OrderedQuantity int    `json:"orderedQuantity,omitempty"`
	OrderCount      int    `json:"orderCount,omitempty"`
}

// Quantity prefers ordered units over order count.
func (p DemandProduct) Quantity() int {
	if p.OrderedQuantity > 0 {
		return p.OrderedQuantity
	}
	return p.OrderCount
}

type InventoryMetrics struct {
	Shortages           []ShortageLine
	Surplus             []ShortageLine
	TotalAvailableStock float64
}

// TotalShortageUnits sums the shortage quantity of every line.
func (m InventoryMetrics) TotalShortageUnits() int {
	total := 0
	for _, s := range m.Shortages {
		total += s.Shortage
	}
	return total
}

type DemandMetrics struct {
	TotalPendingOrders     int
	TotalOrderValue        float64
	RevenueAtRisk          float64
	MarginAtRisk           float64
	AverageOrderSize       float64
	OrdersWithLineItems    int
	UniqueProducts         int
	HighDemandProducts     []DemandProduct
	DemandTrend            string
	SurgeDetected          bool
	OverallSurgePercentage float64
}

type LogisticsMetrics struct {
	TotalPendingOrders  int
	OrdersWithRoutes    int
	OrdersNeedingRoutes int
	MaxDailyCapacity    int
	CapacityUtilization string
	CanFulfillAll       *bool
}

type RiskExposure struct {
	InventoryShortageUnits       int
	InventoryRevenueAtRisk       float64
	LogisticsOrdersNeedingRoutes int
}

type RiskMetrics struct {
	OverallRiskScore *float64
	RiskLevel        string
	Exposure         RiskExposure
}

// InventoryView decodes the inventory metric keys with zero defaults.
func InventoryView(m map[string]any) InventoryMetrics {
	out := InventoryMetrics{
		Shortages: ShortageLines(m[MetricShortages]),
		Surplus:   ShortageLines(m[MetricSurplus]),
	}
	if v, ok := Number(m[MetricTotalAvailableStock]); ok {
		out.TotalAvailableStock = v
	} else if v, ok := Number(m[MetricCurrentStock]); ok {
		out.TotalAvailableStock = v
	}
	return out
}

func DemandView(m map[string]any) DemandMetrics {
	out := DemandMetrics{
		TotalPendingOrders:  Int(m[MetricTotalPendingOrders]),
		TotalOrderValue:     Float(m[MetricTotalOrderValue]),
		RevenueAtRisk:       Float(m[MetricRevenueAtRisk]),
		MarginAtRisk:        Float(m[MetricMarginAtRisk]),
		AverageOrderSize:    Float(m[MetricAverageOrderSize]),
		OrdersWithLineItems: Int(m[MetricOrdersWithLineItems]),
		UniqueProducts:      Int(m[MetricUniqueProducts]),
		HighDemandProducts:  DemandProducts(m[MetricHighDemandProducts]),
		DemandTrend:         String(m[MetricDemandTrend]),
		SurgeDetected:       Bool(m[MetricSurgeDetected]),
	}
	out.OverallSurgePercentage = Float(m[MetricOverallSurgePercentage])
	return out
}

func LogisticsView(m map[string]any) LogisticsMetrics {
	out := LogisticsMetrics{
		TotalPendingOrders:  Int(m[MetricTotalPendingOrders]),
		OrdersWithRoutes:    Int(m[MetricOrdersWithRoutes]),
		OrdersNeedingRoutes: Int(m[MetricOrdersNeedingRoutes]),
		MaxDailyCapacity:    Int(m[MetricMaxDailyCapacity]),
		CapacityUtilization: Utilization(m[MetricCapacityUtilization]),
	}
	if b, ok := m[MetricCanFulfillAll].(bool); ok {
		out.CanFulfillAll = &b
	}
	return out
}

func RiskView(m map[string]any) RiskMetrics {
	out := RiskMetrics{RiskLevel: strings.ToLower(String(m[MetricRiskLevel]))}
	if v, ok := Number(m[MetricOverallRiskScore]); ok {
		out.OverallRiskScore = &v
	}
	if exposure, ok := m[MetricExposureSummary].(map[string]any); ok {
		if inv, ok := exposure["inventory"].(map[string]any); ok {
			out.Exposure.InventoryShortageUnits = Int(inv["totalShortageUnits"])
			out.Exposure.InventoryRevenueAtRisk = Float(inv[MetricRevenueAtRisk])
		}
		if lg, ok := exposure["logistics"].(map[string]any); ok {
			out.Exposure.LogisticsOrdersNeedingRoutes = Int(lg[MetricOrdersNeedingRoutes])
		}
	}
	return out
}

// ShortageLines accepts typed lines or decoded JSON arrays of objects.
func ShortageLines(v any) []ShortageLine {
	switch items := v.(type) {
	case []ShortageLine:
		return items
	case []any:
		var out []ShortageLine
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id := strings.TrimSpace(String(obj["productId"]))
			if id == "" {
				continue
			}
			line := ShortageLine{ProductID: id}
			if n, ok := Number(obj["required"]); ok {
				r := int(n)
				line.Required = &r
			}
			if n, ok := Number(obj["available"]); ok {
				a := int(n)
				line.Available = &a
			}
			if n, ok := Number(obj["shortage"]); ok {
				line.Shortage = int(n)
			} else if n, ok := Number(obj["delta"]); ok {
				line.Shortage = int(n)
			}
			if n, ok := Number(obj["surplus"]); ok {
				line.Surplus = int(n)
			}
			out = append(out, line)
		}
		return out
	}
	return nil
}

func DemandProducts(v any) []DemandProduct {
	switch items := v.(type) {
	case []DemandProduct:
		return items
	case []any:
		var out []DemandProduct
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id := String(obj["productId"])
			if id == "" {
				continue
			}
			out = append(out, DemandProduct{
				ProductID:       id,
				OrderedQuantity: Int(obj["orderedQuantity"]),
				OrderCount:      Int(obj["orderCount"]),
			})
		}
		return out
	}
	return nil
}

func skusFromPayload(data map[string]any) []string {
	if data == nil {
		return nil
	}
	var skus []string
	for _, line := range ShortageLines(data[MetricShortages]) {
		if line.ProductID != "" {
			skus = append(skus, line.ProductID)
		}
	}
	sort.Strings(skus)
	return skus
}

// Number coerces JSON-ish numeric values. Strings such as "1,200" are accepted.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(strings.NewReplacer(",", "", "$", "").Replace(n))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func Float(v any) float64 {
	f, _ := Number(v)
	return f
}

func Int(v any) int {
	f, _ := Number(v)
	return int(f)
}

func String(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case float64, int, bool:
		return fmt.Sprint(s)
	}
	return ""
}

func Bool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true") || strings.EqualFold(b, "yes")
	}
	return false
}

// Utilization renders capacity utilization as a percentage string.
func Utilization(v any) string {
	switch u := v.(type) {
	case string:
		return strings.TrimSpace(u)
	case nil:
		return ""
	}
	f, ok := Number(v)
	if !ok {
		return ""
	}
	if f <= 1 {
		f *= 100
	}
	return strconv.FormatFloat(f, 'f', -1, 64) + "%"
}
