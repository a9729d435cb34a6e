// Package config loads agenthook configuration.
//
// Configuration comes from three layers, later ones winning:
//
//  1. Built-in defaults (GetDefaultConfig)
//  2. config.yaml in the configuration directory (~/.config/agenthook)
//  3. Environment variables prefixed with AGENTHOOK_, read from the process
//     environment and from an optional .env file in the same directory
//
// Values of the form ${NAME} in secrets and auth tokens are expanded from the
// same environment, so credentials can stay out of config.yaml.
//
// # Example
//
//	agents:
//	  - id: sales
//	    uri: https://sales.example.com/mcp
//	    protocol: mcp
//	    authToken: ${SALES_TOKEN}
//	  - id: creative
//	    uri: https://creative.example.com/a2a
//	    protocol: a2a
//	    oauth: true
//	webhook:
//	  port: 8080
//	  urlTemplate: /webhook/{task_type}/{agent_id}/{operation_id}
//	  secret: ${WEBHOOK_SECRET}
//	  timeout: 5m
//	tunnel:
//	  enabled: true
//
// Validate reports every problem at once as a ConfigurationErrorCollection.
package config
