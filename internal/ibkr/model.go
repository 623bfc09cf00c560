package ibkr

import (
	"encoding/xml"
	"time"

	"github.com/shopspring/decimal"
)

// FlexRequestResponse is the answer to SendRequest and, while a statement is
// still being generated, to GetStatement.
type FlexRequestResponse struct {
	XMLName       xml.Name `xml:"FlexStatementResponse"`
	Timestamp     string   `xml:"timestamp,attr"`
	Status        string   `xml:"Status"`        // Success or Fail
	ReferenceCode string   `xml:"ReferenceCode"` // Code to download the requested statement
	URL           string   `xml:"Url"`           // URL to download statement
	ErrorCode     *int     `xml:"ErrorCode"`     // If error, the error code
	ErrorMessage  *string  `xml:"ErrorMessage"`  // If error, the verbose message
}

// FlexQueryResponse is the statement body. Only the sections needed to build
// lots are mapped; numeric attributes stay strings and are parsed as decimals.
type FlexQueryResponse struct {
	XMLName        xml.Name `xml:"FlexQueryResponse"`
	QueryName      string   `xml:"queryName,attr"`
	Type           string   `xml:"type,attr"`
	FlexStatements struct {
		Count         string          `xml:"count,attr"`
		FlexStatement []FlexStatement `xml:"FlexStatement"`
	} `xml:"FlexStatements"`
}

// FlexStatement is one account's statement.
type FlexStatement struct {
	AccountID     string `xml:"accountId,attr"`
	FromDate      string `xml:"fromDate,attr"`
	ToDate        string `xml:"toDate,attr"`
	WhenGenerated string `xml:"whenGenerated,attr"`
	OpenPositions struct {
		OpenPosition []OpenPosition `xml:"OpenPosition"`
	} `xml:"OpenPositions"`
	SecuritiesInfo struct {
		SecurityInfo []SecurityInfo `xml:"SecurityInfo"`
	} `xml:"SecuritiesInfo"`
}

// OpenPosition is a position row. With levelOfDetail LOT there is one row per tax lot.
type OpenPosition struct {
	AssetCategory   string `xml:"assetCategory,attr"`
	Conid           string `xml:"conid,attr"`
	Symbol          string `xml:"symbol,attr"`
	Description     string `xml:"description,attr"`
	Isin            string `xml:"isin,attr"`
	Currency        string `xml:"currency,attr"`
	ListingExchange string `xml:"listingExchange,attr"`
	Position        string `xml:"position,attr"`
	CostBasisMoney  string `xml:"costBasisMoney,attr"`
	CostBasisPrice  string `xml:"costBasisPrice,attr"`
	OpenDateTime    string `xml:"openDateTime,attr"`
	ReportDate      string `xml:"reportDate,attr"`
	LevelOfDetail   string `xml:"levelOfDetail,attr"`
}

// SecurityInfo is the reference data of an instrument.
type SecurityInfo struct {
	AssetCategory   string `xml:"assetCategory,attr"`
	Conid           string `xml:"conid,attr"`
	Symbol          string `xml:"symbol,attr"`
	Description     string `xml:"description,attr"`
	Isin            string `xml:"isin,attr"`
	Currency        string `xml:"currency,attr"`
	ListingExchange string `xml:"listingExchange,attr"`
}

// Statement is the normalised import: securities keyed by conid plus their open lots.
type Statement struct {
	AccountID   string
	StatementAt time.Time
	Securities  []Security
	Lots        []Lot
	Warnings    []string
}

// Security is a normalised instrument.
type Security struct {
	Conid       string
	Symbol      string
	Description string
	ISIN        string
	Currency    string
	Exchange    string
}

// Lot is a normalised open tax lot. CostBasis is in Currency and always positive.
type Lot struct {
	Conid     string
	OpenDate  time.Time
	Quantity  decimal.Decimal
	CostBasis decimal.Decimal
	Currency  string
}
