package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "oss-ranking",
			Version: "0.0.1",
		},

		// Mysql
		Mysql: Mysql{
			Host:                  "127.0.0.1",
			Password:              "root",
			Username:              "root",
			Port:                  "3306",
			Database:              "oss_ranking",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},

		// Kafka
		Kafka: Kafka{
			Brokers:        []string{},
			DeveloperTopic: "discovered-developers",
			ConsumerGroup:  "oss-ranking-archive",
		},

		// GithubApi
		GithubApi: GithubApi{
			AccessToken:         "",
			TokenFile:           "",
			ApiUrl:              "https://api.github.com",
			RequestBudgetPerRun: 50,
			RequestsPerSecond:   5,
			ThrottleDelayMs:     500,
			RateLimitResetMin:   60,
			MaxRetries:          3,
		},

		// Crawl
		Crawl: Crawl{
			Locations: []string{
				"Taiwan",
				"Taipei",
				"New Taipei",
				"Taoyuan",
				"Taichung",
				"Tainan",
				"Kaohsiung",
				"Hsinchu",
				"Keelung",
				"Chiayi",
				"Changhua",
				"Yunlin",
				"Nantou",
				"Pingtung",
				"Yilan",
				"Hualien",
				"Taitung",
				"Penghu",
				"Kinmen",
				"Matsu",
			},
			MinFollowers:             100,
			MaxCandidatesPerLocation: 30,
			PerPage:                  100,
			MaxSearchResults:         1000,
			TopProjects:              5,
			TopContributors:          5,
		},

		// Storage
		Storage: Storage{
			CheckpointFile: "run_progress.json",
			UsersFile:      "Users.json",
			ReportFile:     "README.md",
		},
	}, nil
}
