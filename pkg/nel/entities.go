package nel

import "github.com/OFFIS-RIT/macrokg/pkg/common"

var builtinEntities = []common.Entity{
	{ID: "ent:federal_reserve", Name: "Federal Reserve", Type: "central_bank", Aliases: []string{"Fed", "the Fed", "FOMC", "Federal Open Market Committee", "Federal Reserve Board", "US Federal Reserve", "U.S. Federal Reserve", "연준", "미 연준"}},
	{ID: "ent:ecb", Name: "European Central Bank", Type: "central_bank", Aliases: []string{"ECB"}},
	{ID: "ent:bank_of_korea", Name: "Bank of Korea", Type: "central_bank", Aliases: []string{"BOK", "BoK", "한국은행", "한은"}},
	{ID: "ent:bank_of_japan", Name: "Bank of Japan", Type: "central_bank", Aliases: []string{"BOJ", "BoJ"}},
	{ID: "ent:pboc", Name: "People's Bank of China", Type: "central_bank", Aliases: []string{"PBOC", "PBoC"}},
	{ID: "ent:jerome_powell", Name: "Jerome Powell", Type: "person", Aliases: []string{"Powell", "Jay Powell", "Chair Powell"}},
	{ID: "ent:christine_lagarde", Name: "Christine Lagarde", Type: "person", Aliases: []string{"Lagarde"}},
	{ID: "ent:us_treasury", Name: "US Treasury", Type: "government", Aliases: []string{"Treasury Department", "U.S. Treasury", "Department of the Treasury"}},
	{ID: "ent:bls", Name: "Bureau of Labor Statistics", Type: "government", Aliases: []string{"BLS", "Labor Department"}},
	{ID: "ent:bea", Name: "Bureau of Economic Analysis", Type: "government", Aliases: []string{"BEA"}},
	{ID: "ent:imf", Name: "International Monetary Fund", Type: "organization", Aliases: []string{"IMF"}},
	{ID: "ent:opec", Name: "OPEC", Type: "organization", Aliases: []string{"OPEC+", "Organization of the Petroleum Exporting Countries"}},
	{ID: "ent:white_house", Name: "White House", Type: "government", Aliases: []string{"Biden administration", "Trump administration"}},
	{ID: "ent:sp500", Name: "S&P 500", Type: "index", Aliases: []string{"S&P", "SPX", "Standard & Poor's 500"}},
	{ID: "ent:nasdaq", Name: "Nasdaq Composite", Type: "index", Aliases: []string{"Nasdaq"}},
	{ID: "ent:kospi", Name: "KOSPI", Type: "index", Aliases: []string{"Kospi", "코스피"}},
	{ID: "ent:dxy", Name: "US Dollar Index", Type: "index", Aliases: []string{"DXY", "dollar index"}},
	{ID: "ent:wti", Name: "WTI Crude", Type: "commodity", Aliases: []string{"WTI", "West Texas Intermediate"}},
	{ID: "ent:brent", Name: "Brent Crude", Type: "commodity", Aliases: []string{"Brent"}},
	{ID: "ent:ust10y", Name: "US 10-Year Treasury", Type: "instrument", Aliases: []string{"UST10Y", "10-year Treasury", "10-year yield"}},
	{ID: "ent:korean_won", Name: "Korean Won", Type: "currency", Aliases: []string{"KRW", "won", "원화"}},
	{ID: "ent:us_dollar", Name: "US Dollar", Type: "currency", Aliases: []string{"USD", "greenback", "dollar"}},
}
