// Package types defines the core data model for the Forge automation-rule
// engine: rules, events, action plans, and the closed enumerations that
// classify them.
//
// Values in this package are plain data. All evaluation logic lives in the
// engine, cron, and policy packages; all persistence lives in rulestore.
package types
