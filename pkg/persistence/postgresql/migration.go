package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT false,
				trigger_keywords JSONB NOT NULL DEFAULT '[]',
				match_type VARCHAR(20) NOT NULL DEFAULT 'exact',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_owner ON flows(owner);
			CREATE INDEX idx_flows_active ON flows(active);
			CREATE INDEX idx_flows_created_at ON flows(created_at);
		`,
		2: `
			CREATE TABLE flow_executions (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				subscriber_id VARCHAR(255) NOT NULL,
				channel VARCHAR(100) NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('triggered', 'running', 'completed', 'failed')),
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				variables JSONB NOT NULL DEFAULT '{}',
				wait JSONB,
				wait_kind VARCHAR(20),
				resume_at TIMESTAMP WITH TIME ZONE,
				parent_execution_id VARCHAR(255) NOT NULL DEFAULT '',
				continued_as VARCHAR(255) NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_flow_executions_flow_id ON flow_executions(flow_id);
			CREATE INDEX idx_flow_executions_waiting ON flow_executions(subscriber_id, status) WHERE wait IS NOT NULL;
			CREATE INDEX idx_flow_executions_resume_at ON flow_executions(resume_at) WHERE wait_kind = 'delay';

			CREATE TABLE node_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				flow_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				status VARCHAR(20) NOT NULL,
				error_message TEXT NOT NULL DEFAULT '',
				output JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				seq BIGSERIAL
			);

			CREATE INDEX idx_node_executions_execution_id ON node_executions(execution_id, seq);
		`,
	}
}
