package alphaVantageModel

import (
	"time"

	"github.com/shopspring/decimal"
)

// Throttle holds the fields Alpha Vantage uses in place of data when a call is
// throttled or rejected.
type Throttle struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

type RawGlobalQuote struct {
	Throttle
	Quote struct {
		Symbol           string `json:"01. symbol"`
		Open             string `json:"02. open"`
		High             string `json:"03. high"`
		Low              string `json:"04. low"`
		Price            string `json:"05. price"`
		Volume           string `json:"06. volume"`
		LatestTradingDay string `json:"07. latest trading day"`
		PreviousClose    string `json:"08. previous close"`
		Change           string `json:"09. change"`
		ChangePercent    string `json:"10. change percent"`
	} `json:"Global Quote"`
}

type RawDividends struct {
	Throttle
	Symbol string `json:"symbol"`
	Data   []struct {
		ExDividendDate  string `json:"ex_dividend_date"`
		DeclarationDate string `json:"declaration_date"`
		RecordDate      string `json:"record_date"`
		PaymentDate     string `json:"payment_date"`
		Amount          string `json:"amount"`
	} `json:"data"`
}

type Quote struct {
	Symbol     string
	Price      decimal.Decimal
	TradingDay time.Time
}

type Dividend struct {
	Amount         decimal.Decimal
	ExDividendDate time.Time
	PaymentDate    *time.Time
}
