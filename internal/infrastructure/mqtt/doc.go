// Package mqtt mirrors registry events onto an MQTT broker so home automation
// systems can follow device availability without polling the HTTP API.
package mqtt
