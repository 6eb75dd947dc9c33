package cfg

type (
	App struct {
		Name    string
		Version string
	}

	Mysql struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	Kafka struct {
		Brokers        []string
		DeveloperTopic string
		ConsumerGroup  string
	}

	GithubApi struct {
		AccessToken         string
		TokenFile           string
		ApiUrl              string
		RequestBudgetPerRun int
		RequestsPerSecond   int
		ThrottleDelayMs     int
		RateLimitResetMin   int
		MaxRetries          int
	}

	Crawl struct {
		Locations                []string
		MinFollowers             int
		MaxCandidatesPerLocation int
		PerPage                  int
		MaxSearchResults         int
		TopProjects              int
		TopContributors          int
	}

	Storage struct {
		CheckpointFile string
		UsersFile      string
		ReportFile     string
	}
)

type Config struct {
	App       App
	Mysql     Mysql
	Kafka     Kafka
	GithubApi GithubApi
	Crawl     Crawl
	Storage   Storage
}
