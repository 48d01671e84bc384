package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Suites are stored whole: the definition is read and written as a
			-- unit, so a JSONB column beats normalizing test cases out.
			CREATE TABLE test_suites (
				name VARCHAR(255) PRIMARY KEY,
				definition JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE test_history (
				test_id VARCHAR(255) PRIMARY KEY,
				avg_execution_time_ns BIGINT NOT NULL DEFAULT 0,
				success_rate DOUBLE PRECISION NOT NULL DEFAULT 1.0,
				flaky_score DOUBLE PRECISION NOT NULL DEFAULT 0.0,
				failure_patterns JSONB,
				last_execution TIMESTAMP WITH TIME ZONE,
				last_updated TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				test_id VARCHAR(255) NOT NULL,
				test_name VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'retrying', 'passed', 'failed', 'cancelled')),
				environment VARCHAR(255),
				retry_attempt INT NOT NULL DEFAULT 0,
				start_time TIMESTAMP WITH TIME ZONE,
				end_time TIMESTAMP WITH TIME ZONE,
				duration_ns BIGINT NOT NULL DEFAULT 0,
				error_message TEXT,
				logs JSONB
			);

			CREATE INDEX idx_executions_test_id ON executions(test_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_start_time ON executions(start_time);
		`,
	}
}
