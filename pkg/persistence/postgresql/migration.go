package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create jobs table
			CREATE TABLE jobs (
				id VARCHAR(255) PRIMARY KEY,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'planning', 'generating', 'validating', 'completed', 'failed')),
				progress INT NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
				submission JSONB NOT NULL,
				error JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_jobs_status ON jobs(status);
			CREATE INDEX idx_jobs_created_at ON jobs(created_at);
		`,
		2: `
			-- Migration 2: generated workflow artifacts
			CREATE TABLE artifacts (
				job_id VARCHAR(255) PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE,
				workflow JSONB NOT NULL,
				strategy_used VARCHAR(50) NOT NULL,
				complexity_tier VARCHAR(50) NOT NULL,
				validation_passed BOOLEAN NOT NULL,
				metadata JSONB NOT NULL,
				analysis JSONB,
				costs JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_artifacts_strategy_used ON artifacts(strategy_used);
			CREATE INDEX idx_artifacts_complexity_tier ON artifacts(complexity_tier);
		`,
	}
}
