package normalize

var builtinCountries = map[string][]string{
	"US": {"united states", "united states of america", "usa", "u.s.", "u.s.a.", "america", "us economy", "미국"},
	"KR": {"south korea", "korea", "republic of korea", "rok", "한국", "대한민국"},
	"CN": {"china", "prc", "people's republic of china", "중국"},
	"JP": {"japan", "일본"},
	"DE": {"germany", "독일"},
	"FR": {"france", "프랑스"},
	"GB": {"united kingdom", "uk", "britain", "great britain", "영국"},
	"EU": {"euro area", "eurozone", "euro zone", "european union", "유로존"},
}

var builtinSupported = []string{"US", "KR"}

var builtinCategories = map[string]string{
	"economy":         "growth",
	"macro":           "growth",
	"gdp":             "growth",
	"inflation":       "inflation",
	"prices":          "inflation",
	"central bank":    "monetary_policy",
	"monetary policy": "monetary_policy",
	"fed":             "monetary_policy",
	"jobs":            "labor",
	"employment":      "labor",
	"labor":           "labor",
	"currency":        "fx",
	"forex":           "fx",
	"fx":              "fx",
	"bonds":           "rates",
	"fixed income":    "rates",
	"rates":           "rates",
	"energy":          "energy",
	"oil":             "energy",
	"commodities":     "energy",
	"trade":           "trade",
	"tariffs":         "trade",
	"fiscal":          "fiscal",
	"budget":          "fiscal",
	"government":      "fiscal",
	"real estate":     "housing",
	"housing":         "housing",
	"banking":         "financial_stability",
	"markets":         "financial_stability",
	"finance":         "financial_stability",
	"경제":              "growth",
	"금융":              "financial_stability",
	"부동산":             "housing",
}

var builtinThemes = []Theme{
	{ID: "inflation", Name: "Inflation", Keywords: []string{"inflation", "cpi", "pce", "consumer prices", "price pressures", "disinflation", "deflation", "core prices", "물가", "인플레이션"}},
	{ID: "monetary_policy", Name: "Monetary Policy", Keywords: []string{"fed", "fomc", "federal reserve", "rate hike", "rate cut", "central bank", "policy rate", "tightening", "easing", "quantitative", "bank of korea", "기준금리", "연준"}},
	{ID: "growth", Name: "Growth", Keywords: []string{"gdp", "growth", "recession", "output", "expansion", "slowdown", "pmi", "경기", "성장"}},
	{ID: "labor", Name: "Labor Market", Keywords: []string{"jobs", "payrolls", "unemployment", "employment", "wages", "jobless", "labor market", "고용", "실업"}},
	{ID: "fx", Name: "Foreign Exchange", Keywords: []string{"dollar", "won", "currency", "exchange rate", "fx", "yen", "euro", "dxy", "환율", "달러"}},
	{ID: "rates", Name: "Interest Rates", Keywords: []string{"yield", "yields", "treasury", "treasuries", "bond", "bonds", "10 year", "curve", "국채", "금리"}},
	{ID: "energy", Name: "Energy", Keywords: []string{"oil", "crude", "opec", "brent", "wti", "gas prices", "energy", "유가"}},
	{ID: "trade", Name: "Trade", Keywords: []string{"exports", "imports", "tariff", "tariffs", "trade balance", "trade war", "supply chain", "수출", "무역"}},
	{ID: "fiscal", Name: "Fiscal Policy", Keywords: []string{"budget", "deficit", "stimulus", "spending", "debt ceiling", "fiscal", "tax", "재정"}},
	{ID: "housing", Name: "Housing", Keywords: []string{"housing", "home prices", "mortgage", "real estate", "home sales", "주택", "부동산"}},
	{ID: "financial_stability", Name: "Financial Stability", Keywords: []string{"bank failure", "credit", "liquidity", "default", "contagion", "stress", "volatility", "selloff", "금융 안정"}},
}

var builtinIndicators = []Indicator{
	{Code: "CPI_US", Name: "US Consumer Price Index", Country: "US", Unit: "index", Themes: []string{"inflation"}, Keywords: []string{"cpi", "consumer price index", "consumer prices", "inflation"}},
	{Code: "CORE_PCE_US", Name: "US Core PCE Price Index", Country: "US", Unit: "index", Themes: []string{"inflation"}, Keywords: []string{"pce", "core pce"}},
	{Code: "FED_FUNDS", Name: "Federal Funds Rate", Country: "US", Unit: "percent", Themes: []string{"monetary_policy", "rates"}, Keywords: []string{"fed funds", "federal funds rate", "policy rate", "rate hike", "rate cut"}},
	{Code: "UST10Y", Name: "US 10-Year Treasury Yield", Country: "US", Unit: "percent", Themes: []string{"rates"}, Keywords: []string{"10 year", "treasury yield", "treasuries", "yields"}},
	{Code: "UST2Y", Name: "US 2-Year Treasury Yield", Country: "US", Unit: "percent", Themes: []string{"rates", "monetary_policy"}, Keywords: []string{"2 year", "two year yield"}},
	{Code: "UNRATE_US", Name: "US Unemployment Rate", Country: "US", Unit: "percent", Themes: []string{"labor"}, Keywords: []string{"unemployment", "jobless rate", "unemployment rate"}},
	{Code: "NFP_US", Name: "US Nonfarm Payrolls", Country: "US", Unit: "thousands", Themes: []string{"labor"}, Keywords: []string{"payrolls", "nonfarm", "jobs report"}},
	{Code: "GDP_US", Name: "US Real GDP", Country: "US", Unit: "percent", Themes: []string{"growth"}, Keywords: []string{"gdp", "economic growth"}},
	{Code: "DXY", Name: "US Dollar Index", Country: "US", Unit: "index", Themes: []string{"fx"}, Keywords: []string{"dollar index", "dollar", "greenback"}},
	{Code: "WTI", Name: "WTI Crude Oil", Country: "US", Unit: "usd", Themes: []string{"energy"}, Keywords: []string{"wti", "crude", "oil prices", "oil"}},
	{Code: "USDKRW", Name: "USD/KRW Exchange Rate", Country: "KR", Unit: "krw", Themes: []string{"fx"}, Keywords: []string{"won", "usd krw", "원달러", "환율"}},
	{Code: "CPI_KR", Name: "Korea Consumer Price Index", Country: "KR", Unit: "index", Themes: []string{"inflation"}, Keywords: []string{"korea cpi", "소비자물가"}},
	{Code: "BOK_RATE", Name: "Bank of Korea Base Rate", Country: "KR", Unit: "percent", Themes: []string{"monetary_policy"}, Keywords: []string{"bank of korea", "bok", "base rate", "기준금리"}},
	{Code: "KOSPI", Name: "KOSPI Composite Index", Country: "KR", Unit: "index", Themes: []string{"financial_stability", "growth"}, Keywords: []string{"kospi", "korean stocks", "코스피"}},
	{Code: "KR_EXPORTS", Name: "Korea Exports", Country: "KR", Unit: "usd", Themes: []string{"trade", "growth"}, Keywords: []string{"korea exports", "수출"}},
}
