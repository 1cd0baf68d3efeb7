package dashboard

// Fixed fallback dataset served when the stores are unreachable. Responses
// built from it carry source "mock" so consumers can tell it apart from
// crawled data.

func ptr[T any](v T) *T { return &v }

func mockSummary() *Summary {
	return &Summary{
		TotalGames:      50,
		AvgPrice:        ptr(128.5),
		MaxPrice:        ptr(468.0),
		FreeGames:       8,
		DiscountedGames: 21,
		LatestCrawlDate: ptr("2024-01-15"),
		Table:           "steam_games_2024w03",
	}
}

func mockGames() []GameItem {
	return []GameItem{
		{
			AppID:           ptr("1091500"),
			Name:            "赛博朋克2077",
			Price:           ptr(149.0),
			OriginalPrice:   ptr(298.0),
			DiscountPercent: ptr(50),
			PositiveRate:    ptr(86),
			TotalReviews:    ptr(612345),
			Developer:       ptr("CD PROJEKT RED"),
			Genres:          ptr("角色扮演,开放世界"),
			Rank:            ptr(1),
			RankType:        ptr("topsellers"),
			CrawlDate:       "2024-01-15",
		},
		{
			AppID:        ptr("570"),
			Name:         "Dota 2",
			Price:        ptr(0.0),
			PositiveRate: ptr(81),
			TotalReviews: ptr(2034567),
			Developer:    ptr("Valve"),
			Genres:       ptr("策略,免费开玩"),
			Rank:         ptr(2),
			RankType:     ptr("topsellers"),
			CrawlDate:    "2024-01-15",
		},
		{
			AppID:           ptr("1245620"),
			Name:            "艾尔登法环",
			Price:           ptr(298.0),
			OriginalPrice:   ptr(398.0),
			DiscountPercent: ptr(25),
			PositiveRate:    ptr(93),
			TotalReviews:    ptr(789012),
			Developer:       ptr("FromSoftware"),
			Genres:          ptr("动作,角色扮演"),
			Rank:            ptr(3),
			RankType:        ptr("topsellers"),
			CrawlDate:       "2024-01-15",
		},
	}
}

func mockPriceDistribution() []Bucket {
	return []Bucket{
		{Label: "免费", Count: 8},
		{Label: "0-50", Count: 12},
		{Label: "50-100", Count: 10},
		{Label: "100-200", Count: 11},
		{Label: "200-500", Count: 9},
	}
}

func mockGenreDistribution() map[string]int {
	return map[string]int{
		"动作":   18,
		"角色扮演": 14,
		"策略":   9,
		"冒险":   7,
		"模拟":   5,
	}
}

func mockDiscountAnalysis() []Bucket {
	return []Bucket{
		{Label: "无折扣", Count: 29},
		{Label: "1-25%", Count: 6},
		{Label: "26-50%", Count: 9},
		{Label: "51-75%", Count: 4},
		{Label: "76-100%", Count: 2},
	}
}

func mockTrending() []TrendPoint {
	return []TrendPoint{
		{CrawlDate: "2024-01-13", Games: 48, AvgPrice: ptr(131.2)},
		{CrawlDate: "2024-01-14", Games: 50, AvgPrice: ptr(129.8)},
		{CrawlDate: "2024-01-15", Games: 50, AvgPrice: ptr(128.5)},
	}
}
