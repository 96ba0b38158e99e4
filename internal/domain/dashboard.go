package domain

type UnifiedDashboard struct {
	Sessions SessionStats `json:"sessions"` // Документы в работе
	Requests RequestStats `json:"requests"` // Исходы вызовов
	Quality  QualityStats `json:"quality"`  // SLO/SLI (Latency)
}

type SessionStats struct {
	Draft     int `json:"draft"`
	Reviewing int `json:"reviewing"`
	Executing int `json:"executing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type RequestStats struct {
	Pending   int64 `json:"pending"`
	Approved  int64 `json:"approved"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Retries   int64 `json:"retries"` // REQUEST_RETRY_* из журнала аудита
}

type QualityStats struct {
	P95LatencyMs float64 `json:"p95_latency_ms"`
	SuccessRatio float64 `json:"success_ratio"`
}
