package actors

import (
	"os"
	"time"

	"github.com/spf13/viper"
	"meshnostr/engine/library"
)

// InitConfig sets up our Viper config object
func InitConfig(config *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	config.SetDefault("rootDir", homeDir+"/meshnostr/")
	config.SetConfigType("yaml")
	config.SetConfigFile(config.GetString("rootDir") + "config.yaml")
	err = config.ReadInConfig()
	if err != nil {
		library.LogCLI(err.Error(), 4)
	}
	config.SetDefault("firstRun", true)
	config.SetDefault("logLevel", 4)
	config.SetDefault("relays", []string{"wss://relay.damus.io", "wss://nos.lol", "wss://offchain.pub"})
	config.SetDefault("connectTimeout", time.Second*10)
	config.SetDefault("reconnectInitialInterval", time.Second)
	config.SetDefault("reconnectMultiplier", 2.0)
	config.SetDefault("reconnectMaxInterval", time.Second*300)
	config.SetDefault("reconnectMaxAttempts", 10)
	config.SetDefault("dedupeCapacity", 5000)
	config.SetDefault("subscriptionCheckInterval", time.Second*30)
	config.SetDefault("meshPowFloor", 8)
	config.SetDefault("miningBudget", 1<<22)
	config.SetDefault("geoRelayCount", 3)
	// Create our working directory and config file if not exist
	initRootDir(config)
	touch(config.GetString("rootDir") + "config.yaml")
	err = config.WriteConfig()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
}

func initRootDir(conf *viper.Viper) {
	_, err := os.Stat(conf.GetString("rootDir"))
	if os.IsNotExist(err) {
		err = os.Mkdir(conf.GetString("rootDir"), 0755)
		if err != nil {
			library.LogCLI(err, 0)
		}
	}
}

func touch(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		file, err := os.Create(path)
		if err != nil {
			library.LogCLI(err.Error(), 0)
			return
		}
		file.Close()
	}
}

var conf *viper.Viper

func MakeOrGetConfig() *viper.Viper {
	return conf
}

func SetConfig(config *viper.Viper) {
	conf = config
}
