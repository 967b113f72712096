package config

// Default returns a configuration with every default applied.
// It is used by tests and by tools that run without config files.
func Default() *Config {
	cfg := &Config{
		Common: CommonConfig{Version: CurrentCommonVersion},
		Worker: WorkerConfig{Version: CurrentWorkerVersion},
	}
	cfg.applyDefaults()

	return cfg
}

// applyDefaults fills zero values with sane defaults.
func (c *Config) applyDefaults() {
	setString(&c.Common.Debug.LogLevel, "info")
	setInt(&c.Common.Debug.MaxLogsToKeep, 10)
	setInt(&c.Common.Debug.MaxLogLines, 10000)

	setString(&c.Common.Database.Driver, "postgres")
	setString(&c.Common.Database.Path, "decelerator.db")
	setInt(&c.Common.Database.Port, 5432)
	setInt(&c.Common.Database.MaxOpenConns, 20)
	setInt(&c.Common.Database.MaxIdleConns, 10)
	setInt(&c.Common.Database.MaxLifetime, 30)
	setInt(&c.Common.Database.MaxIdleTime, 5)

	setString(&c.Common.Redis.Host, "localhost")
	setInt(&c.Common.Redis.Port, 6379)

	setInt(&c.Common.Loki.BatchMaxSize, 100)
	setInt(&c.Common.Loki.BatchMaxWaitMS, 5000)

	setInt(&c.Common.Remote.RequestTimeout, 30000)
	if c.Common.Remote.RequestsPerSecond <= 0 {
		c.Common.Remote.RequestsPerSecond = 1
	}
	setInt(&c.Common.Remote.Burst, 1)
	setInt(&c.Common.Remote.PageSize, 40)
	setString(&c.Common.Remote.UserAgent, "decelerator/"+RepositoryVersion)
	if c.Common.Remote.CircuitBreaker.MaxRequests == 0 {
		c.Common.Remote.CircuitBreaker.MaxRequests = 5
	}
	setInt(&c.Common.Remote.CircuitBreaker.Interval, 60000)
	setInt(&c.Common.Remote.CircuitBreaker.Timeout, 30000)

	setString(&c.Common.API.Host, "0.0.0.0")
	setInt(&c.Common.API.Port, 8080)
	setInt(&c.Common.API.FlushInterval, 15000)
	setInt(&c.Common.API.DefaultWindow, 120000)
	if c.Common.API.RequestsPerSecond <= 0 {
		c.Common.API.RequestsPerSecond = 10
	}
	setInt(&c.Common.API.Burst, 20)

	setInt(&c.Worker.Sync.HorizonHours, 30*24)
	setInt(&c.Worker.Sync.PagePause, 1000)
	setInt(&c.Worker.Sync.MaxPages, 50)

	setInt(&c.Worker.Reaction.MaxIterations, 8)
	setInt(&c.Worker.Reaction.RelationshipPause, 3000)

	setInt(&c.Worker.Daemon.HistoryThreshold, 2000)
	setInt(&c.Worker.Daemon.IdleInterval, 30000)
	setInt(&c.Worker.Daemon.RateLimitBackoff, 5*60*1000)
	setInt(&c.Worker.Daemon.RateLimitMaxBackoff, 60*60*1000)
	setInt(&c.Worker.Daemon.DiscoveryConcurrency, 4)
	setInt(&c.Worker.Daemon.DrainConcurrency, 1)
	setInt(&c.Worker.Daemon.BackfillHorizonHours, 30*24)

	setPolicy(&c.Worker.Tasks.Store, TaskPolicy{
		Timeout: 15000, InitialInterval: 1000, MaxInterval: 10000, MaxAttempts: 5,
	})
	setPolicy(&c.Worker.Tasks.Sync, TaskPolicy{
		Timeout: 3 * 60 * 1000, HeartbeatTimeout: 30000,
		InitialInterval: 5 * 60 * 1000, MaxInterval: 30 * 60 * 1000, MaxAttempts: 3,
	})
	setPolicy(&c.Worker.Tasks.Relationship, TaskPolicy{
		Timeout: 60000, InitialInterval: 5000, MaxInterval: 60000, MaxAttempts: 3,
	})
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setPolicy(p *TaskPolicy, def TaskPolicy) {
	setInt(&p.Timeout, def.Timeout)
	if p.HeartbeatTimeout == 0 {
		p.HeartbeatTimeout = def.HeartbeatTimeout
	}
	setInt(&p.InitialInterval, def.InitialInterval)
	setInt(&p.MaxInterval, def.MaxInterval)
	if p.MaxAttempts == 0 {
		p.MaxAttempts = def.MaxAttempts
	}
}
