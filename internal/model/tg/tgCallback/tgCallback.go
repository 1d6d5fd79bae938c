package tgCallback

// Callback button uniques
const (
	HoldingsPage string = "holdings_page" // data is the page number to show
	ShareReport  string = "share_report"
)
